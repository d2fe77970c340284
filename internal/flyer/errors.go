package flyer

import "fmt"

// ImageProcessingError is returned when the uploaded image cannot be decoded
// or re-encoded.
type ImageProcessingError struct {
	Err error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing failed: %v", e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// UploadError is returned when the image cannot be stored, including after
// the bucket was created and the upload retried.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("image upload failed for %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
