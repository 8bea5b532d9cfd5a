package client

import (
	"context"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client/fhir"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"

	"github.com/stretchr/testify/mock"
)

type MockPDSClient struct {
	mock.Mock
}

func (m *MockPDSClient) SearchPatientByNHSNumber(ctx context.Context, nhsNumber string, opts PDSRequestOptions) (*models.PDSSearchResult, error) {
	args := m.Called(nhsNumber, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PDSSearchResult), args.Error(1)
}

type MockSDSClient struct {
	mock.Mock
}

func (m *MockSDSClient) GetOrgDetails(ctx context.Context, odsCode, correlationID string) (*models.SDSSearchResult, error) {
	args := m.Called(odsCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SDSSearchResult), args.Error(1)
}

type MockProviderClient struct {
	mock.Mock
}

func (m *MockProviderClient) AccessStructuredRecord(ctx context.Context, req ProviderRequest) (*fhir.RawResponse, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fhir.RawResponse), args.Error(1)
}
