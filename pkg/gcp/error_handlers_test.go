package gcp

import (
	"fmt"
	"testing"

	"github.com/googleapis/gax-go/v2/apierror"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGcp(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gcp")
}

func grpcError(code codes.Code) error {
	apiErr, ok := apierror.FromError(status.Error(code, "some message"))
	Expect(ok).To(BeTrue())
	return apiErr
}

var _ = Describe("Error classification", func() {
	It("recognizes already-exists on both API surfaces", func() {
		Expect(IsAlreadyExists(grpcError(codes.AlreadyExists))).To(BeTrue())
		Expect(IsAlreadyExists(&googleapi.Error{Code: 409})).To(BeTrue())
	})

	It("recognizes not-found on both API surfaces", func() {
		Expect(IsNotFound(grpcError(codes.NotFound))).To(BeTrue())
		Expect(IsNotFound(&googleapi.Error{Code: 404})).To(BeTrue())
	})

	It("does not cross-classify the two conditions", func() {
		Expect(IsAlreadyExists(grpcError(codes.NotFound))).To(BeFalse())
		Expect(IsNotFound(&googleapi.Error{Code: 409})).To(BeFalse())
	})

	It("does not classify unrelated errors", func() {
		Expect(IsAlreadyExists(fmt.Errorf("dial tcp: connection refused"))).To(BeFalse())
		Expect(IsNotFound(grpcError(codes.PermissionDenied))).To(BeFalse())
	})
})

var _ = Describe("Service account resource ids", func() {
	It("formats the full resource name", func() {
		Expect(FmtSaResourceId("deployer", "some-project")).To(Equal(
			"projects/some-project/serviceAccounts/deployer@some-project.iam.gserviceaccount.com"))
	})

	It("extracts the email back out", func() {
		resource := FmtSaResourceId("deployer", "some-project")
		Expect(ExtractEmail(resource)).To(Equal("deployer@some-project.iam.gserviceaccount.com"))
	})

	It("returns the empty string for a non service account resource", func() {
		Expect(ExtractEmail("projects/some-project/secrets/bybit-api-key")).To(Equal(""))
	})
})
