// Package prompt builds the model prompts for flyer structuring and recipe
// generation. Every function here is pure.
package prompt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"smartrecipe/internal/llm"
	"smartrecipe/internal/recipe"
)

// Task selects which prompt to build.
type Task int

// Supported tasks.
const (
	TaskStructureText Task = iota + 1
	TaskStructureImage
	TaskGenerateRecipe
)

func (t Task) String() string {
	switch t {
	case TaskStructureText:
		return "structure_text"
	case TaskStructureImage:
		return "structure_image"
	case TaskGenerateRecipe:
		return "generate_recipe"
	default:
		return "unknown"
	}
}

var (
	// ErrUnknownTask is returned by Build for an unsupported task.
	ErrUnknownTask = errors.New("unknown prompt task")
	// ErrMissingPayload is returned by Build when the task's payload is empty.
	ErrMissingPayload = errors.New("missing prompt payload")
)

// Input is the typed payload for one prompt. Only the fields relevant to Task
// are read. Now anchors relative dates for the flyer prompts.
type Input struct {
	Task   Task
	Now    time.Time
	Text   string
	Image  *llm.Image
	Recipe *recipe.GenerationParams
}

// Build dispatches on in.Task.
func Build(in Input) (llm.Request, error) {
	switch in.Task {
	case TaskStructureText:
		if strings.TrimSpace(in.Text) == "" {
			return llm.Request{}, fmt.Errorf("%w: flyer text", ErrMissingPayload)
		}
		return StructureFromText(in.Text, in.Now), nil
	case TaskStructureImage:
		if in.Image == nil || len(in.Image.Data) == 0 {
			return llm.Request{}, fmt.Errorf("%w: flyer image", ErrMissingPayload)
		}
		return StructureFromImage(*in.Image, in.Now), nil
	case TaskGenerateRecipe:
		if in.Recipe == nil {
			return llm.Request{}, fmt.Errorf("%w: generation params", ErrMissingPayload)
		}
		return Recipe(*in.Recipe), nil
	default:
		return llm.Request{}, fmt.Errorf("%w: %d", ErrUnknownTask, in.Task)
	}
}

const flyerRules = `# Boundary detection
Identify every visual boundary on the flyer before reading prices:
- thick solid lines separate main categories
- dashed or dotted lines separate sub-categories or special-price areas
- double lines, coloured lines and boxed frames mark featured or bundled deals
- background colour changes mark category or price-band changes

# Semantic grouping
For each bounded region decide why its items belong together (product category,
price band such as "everything 100 yen", time-limited deal, quantity deal, brand,
or store location) and describe its place in the layout hierarchy
(main category, sub-category, product group, single item).

# Price scoping rule
A price applies ONLY to items inside the same boundary as the price.
Never attribute a price to an item across a boundary. If a region shows one
shared price for all of its items, put it in group_price and leave the item's
sale_price null. Only "¥100", "100円" and "100 yen" are prices; "100g", "500ml",
"3 pcs" and "1 pack" are units.

# Dates
sale_period.start and sale_period.end MUST be concrete calendar dates in
YYYY-MM-DD form with real digits, for example %s. Never output placeholder
text such as "YYYY-MM-DD". If the flyer omits the year or month, assume the
current month (%s). If no period is printed at all, use %s to %s.`

const flyerSchema = `# Output format
{
  "store_name": "store name",
  "sale_period": {"start": "%s", "end": "%s"},
  "layout_analysis": "overall layout and boundary analysis",
  "hierarchy_structure": "main category -> sub-category structure",
  "groups": [
    {
      "group_name": "group name",
      "group_type": "category | price band | time-limited | quantity | brand | store layout",
      "semantic_meaning": "why these items are grouped",
      "boundary_type": "thick line | dashed line | double line | coloured line | frame | background",
      "boundary_description": "details of the boundary",
      "hierarchy_level": "main category | sub-category | product group | single item",
      "group_price": number or null,
      "price_source": "where the group price was read",
      "sale_strategy": "bundle | clearance | seasonal | cross-sell",
      "target_customer": "families | singles | seniors",
      "contextual_info": "morning market | time sale | markdown",
      "items": [
        {
          "name": "product name",
          "original_price": number or null,
          "sale_price": number or null,
          "discount_rate": number between 0.0 and 1.0 or null,
          "category": "category",
          "unit": "unit",
          "price_proximity": "where the price sits relative to the item",
          "group_relevance": "why the item belongs to this group",
          "cross_sell_potential": "related items it pairs with"
        }
      ]
    }
  ]
}

Respond with the JSON object only.`

// StructureFromText builds the prompt that structures OCR text from a flyer.
func StructureFromText(text string, now time.Time) llm.Request {
	var b strings.Builder
	b.WriteString("You are analysing the text of a supermarket sale flyer. Extract every product and price into JSON.\n\n")
	writeFlyerInstructions(&b, now)
	b.WriteString("\n\n# Flyer text\n")
	b.WriteString(strings.TrimSpace(text))
	return llm.Request{Prompt: b.String()}
}

// StructureFromImage builds the vision prompt for a flyer photo. The image is
// attached to the request rather than embedded in the text.
func StructureFromImage(img llm.Image, now time.Time) llm.Request {
	var b strings.Builder
	b.WriteString("You are looking at a photo of a supermarket sale flyer. Read it the way a shopper would, ")
	b.WriteString("paying close attention to the lines and frames that group products, and extract every product and price into JSON.\n\n")
	writeFlyerInstructions(&b, now)
	return llm.Request{Prompt: b.String(), Image: &img}
}

func writeFlyerInstructions(b *strings.Builder, now time.Time) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthEnd := monthStart.AddDate(0, 1, -1)
	today := now.Format("2006-01-02")
	weekLater := now.AddDate(0, 0, 7).Format("2006-01-02")

	fmt.Fprintf(b, flyerRules, today, now.Format("2006-01"), today, weekLater)
	b.WriteString("\n\n")
	fmt.Fprintf(b, flyerSchema, monthStart.Format("2006-01-02"), monthEnd.Format("2006-01-02"))
}

// Recipe builds the recipe-generation prompt.
func Recipe(p recipe.GenerationParams) llm.Request {
	c := p.Constraints
	var b strings.Builder

	b.WriteString("As a professional home cook, create one practical recipe under the conditions below.\n\n")

	b.WriteString("## Available ingredients\n### In the fridge\n")
	if len(p.Inventory) == 0 {
		b.WriteString("- (nothing)\n")
	}
	for _, it := range p.Inventory {
		expiry := it.ExpiryDate
		if expiry == "" {
			expiry = "unknown"
		}
		fmt.Fprintf(&b, "- %s (%s%s, expires: %s)\n", it.Name, formatNumber(it.Quantity), it.Unit, expiry)
	}

	b.WriteString("\n### On sale at nearby supermarkets\n")
	if len(p.SaleItems) == 0 {
		b.WriteString("- (nothing)\n")
	}
	for _, it := range p.SaleItems {
		fmt.Fprintf(&b, "- %s: %s yen (regular %s yen, %s off)\n",
			it.Name, formatPrice(it.SalePrice), formatPrice(it.OriginalPrice), formatDiscount(it.DiscountRate))
	}

	b.WriteString("\n## Conditions\n")
	fmt.Fprintf(&b, "- Difficulty: %d/5\n", c.Difficulty)
	fmt.Fprintf(&b, "- Cooking time: within %d minutes\n", c.CookingTime)
	fmt.Fprintf(&b, "- Servings: %d\n", c.Servings)
	fmt.Fprintf(&b, "- Budget: up to %s yen\n", formatNumber(c.Budget))
	fmt.Fprintf(&b, "- Allergies: %s\n", listOrNone(c.Allergies))
	fmt.Fprintf(&b, "- Dietary restrictions: %s\n", listOrNone(c.DietaryRestrictions))

	b.WriteString(recipeSchema)
	return llm.Request{Prompt: b.String()}
}

const recipeSchema = `
## Output format (JSON)
{
  "title": "dish name",
  "description": "short description",
  "difficulty": 1-5,
  "cooking_time": minutes,
  "servings": number of people,
  "total_cost": estimated total cost in yen,
  "sale_savings": amount saved by using sale items, between 0 and total_cost,
  "ingredients": [
    {
      "name": "ingredient",
      "amount": "quantity",
      "source": "fridge" | "sale" | "purchase",
      "cost": estimated cost in yen
    }
  ],
  "instructions": [
    "Step 1: concrete instruction",
    "Step 2: ..."
  ],
  "tips": [
    "cooking tip"
  ],
  "nutritional_info": {
    "calories_per_serving": "kcal per serving",
    "protein": "protein",
    "carbs": "carbohydrates",
    "fat": "fat"
  },
  "categories": ["Japanese", "Western", "Chinese", ...],
  "tags": ["quick", "budget", "healthy", ...]
}

Prefer sale items and use the ingredients closest to expiry first. Respond with the JSON object only.`

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return formatNumber(*v)
}

func formatDiscount(rate *float64) string {
	if rate == nil {
		return "unknown discount"
	}
	return fmt.Sprintf("%d%%", int(math.Round(*rate*100)))
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
