package gcp

import (
	"fmt"

	"github.com/googleapis/gax-go/v2/apierror"
	googleapi "google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
)

// IsAlreadyExists reports whether the error indicates the resource was
// present before the call. Both API surfaces are covered: the gRPC clients
// return apierror with an AlreadyExists code, the REST clients a 409.
func IsAlreadyExists(err error) bool {
	if pApiError, ok := err.(*apierror.APIError); ok {
		return pApiError.GRPCStatus().Code() == codes.AlreadyExists
	}
	if gError, ok := err.(*googleapi.Error); ok {
		return gError.Code == 409
	}
	return false
}

// IsNotFound reports whether the error indicates the resource is absent.
func IsNotFound(err error) bool {
	if pApiError, ok := err.(*apierror.APIError); ok {
		return pApiError.GRPCStatus().Code() == codes.NotFound
	}
	if gError, ok := err.(*googleapi.Error); ok {
		return gError.Code == 404
	}
	return false
}

// Extracts the text from google api errors for simpler processing
func (c *gcpClient) fmtApiError(err error) error {
	if pApiError, ok := err.(*apierror.APIError); ok {
		return fmt.Errorf("%s", pApiError.Error())
	}
	if gError, ok := err.(*googleapi.Error); ok {
		return fmt.Errorf("%s", gError.Error())
	}
	return err
}
