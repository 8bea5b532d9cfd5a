package stubs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NHSDigital/clinical-data-gateway-api/gateway/client"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	randomdata "github.com/Pallinder/go-randomdata"
	"github.com/stretchr/testify/assert"
)

const utf8BOM = "\xef\xbb\xbf"

func seedTOML(family, given string) string {
	return fmt.Sprintf(`
[[patient]]
nhs_number = "9000000017"
family = %q
given = [%q]
gender = "male"
birth_date = "1990-02-03"
gp_ods = "NEWGP"
record = true

[[organisation]]
ods = "NEWGP"
asid = "asid_NEWGP"
party_key = "NEWGP-0000900"
address = "https://newgp.example.com/fhir"
`, family, given)
}

func (s *StubsTestSuite) writeSeed(contents string) string {
	path := filepath.Join(s.T().TempDir(), "seed.toml")
	assert.NoError(s.T(), os.WriteFile(path, []byte(contents), 0600))
	return path
}

func (s *StubsTestSuite) patient(nhsNumber string) (storedPatient, bool) {
	s.stubs.PDS.mu.RLock()
	defer s.stubs.PDS.mu.RUnlock()
	p, ok := s.stubs.PDS.patients[nhsNumber]
	return p, ok
}

func (s *StubsTestSuite) TestApplySeedFile() {
	family, given := randomdata.LastName(), randomdata.FirstName(randomdata.Male)
	path := s.writeSeed(utf8BOM + seedTOML(family, given))

	assert.NoError(s.T(), s.stubs.ApplySeedFile(path))

	pds := client.NewPDSClient(s.ts.URL+PDSPrefix, "", s.ts.Client())
	result, err := pds.SearchPatientByNHSNumber(context.Background(), "9000000017", client.PDSRequestOptions{})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), given, result.GivenNames)
	assert.Equal(s.T(), family, result.FamilyName)
	assert.Equal(s.T(), "NEWGP", result.GPODSCode)

	sds := client.NewSDSClient(s.ts.URL+SDSPrefix, "key", "", s.ts.Client())
	org, err := sds.GetOrgDetails(context.Background(), "NEWGP", "")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "asid_NEWGP", org.ASID)
	assert.Equal(s.T(), "https://newgp.example.com/fhir", org.Endpoint)

	s.stubs.Provider.mu.RLock()
	_, ok := s.stubs.Provider.records["9000000017"]
	s.stubs.Provider.mu.RUnlock()
	assert.True(s.T(), ok)

	// seeded data is kept
	_, ok = s.patient("9999999999")
	assert.True(s.T(), ok)
}

func (s *StubsTestSuite) TestApplyReplacesOrganisation() {
	seed := &Seed{Organisations: []Organisation{{
		ODS:      "PROVIDER",
		ASID:     "asid_NEW",
		PartyKey: "PROVIDER-0000999",
		Address:  "https://new-provider.example.com/fhir",
	}}}

	// applying twice mirrors a watched file being saved twice
	assert.NoError(s.T(), s.stubs.Apply(seed))
	assert.NoError(s.T(), s.stubs.Apply(seed))

	sds := client.NewSDSClient(s.ts.URL+SDSPrefix, "key", "", s.ts.Client())
	org, err := sds.GetOrgDetails(context.Background(), "PROVIDER", "")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "asid_NEW", org.ASID)
	assert.Equal(s.T(), "https://new-provider.example.com/fhir", org.Endpoint)

	interaction := url.QueryEscape(constants.ServiceInteractionSystem + "|" + constants.DefaultServiceInteractionID)
	ods := url.QueryEscape(constants.ODSOrganisationSystem + "|PROVIDER")
	resp := s.get("/sds/Device?organization="+ods+"&identifier="+interaction, map[string]string{"apikey": "k"})
	defer resp.Body.Close()

	var bundle models.Bundle
	assert.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&bundle))
	assert.Equal(s.T(), 1, *bundle.Total)

	// other organisations are untouched
	consumer, err := sds.GetOrgDetails(context.Background(), "CONSUMER", "")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "asid_CONS", consumer.ASID)
}

func (s *StubsTestSuite) TestUpsertDeviceReplacesByID() {
	device := models.Device{ResourceType: models.DeviceResourceType, ID: "D1"}
	s.stubs.SDS.UpsertDevice("ODS1", constants.DefaultServiceInteractionID, "PK1", device)
	device.Identifier = []models.Identifier{{System: constants.ASIDSystem, Value: "asid_2"}}
	s.stubs.SDS.UpsertDevice("ODS1", constants.DefaultServiceInteractionID, "PK1", device)
	s.stubs.SDS.UpsertDevice("ODS1", constants.DefaultServiceInteractionID, "PK1", models.Device{ID: "D2"})

	devices := s.stubs.SDS.lookupDevices(sdsKey{"ODS1", constants.DefaultServiceInteractionID, "PK1"})
	assert.Len(s.T(), devices, 2)
	assert.Equal(s.T(), "asid_2", devices[0].Identifier[0].Value)

	s.stubs.SDS.RemoveOrganisation("ODS1", constants.DefaultServiceInteractionID)
	assert.Empty(s.T(), s.stubs.SDS.lookupDevices(sdsKey{"ODS1", constants.DefaultServiceInteractionID, "PK1"}))
}

func (s *StubsTestSuite) TestLoadSeedFileErrors() {
	_, err := LoadSeedFile(filepath.Join(s.T().TempDir(), "missing.toml"))
	assert.Contains(s.T(), err.Error(), "could not open seed file")

	_, err = LoadSeedFile(s.writeSeed("[[patient]\nnhs_number = "))
	assert.Contains(s.T(), err.Error(), "could not parse seed file")
}

func (s *StubsTestSuite) TestApplyRejectsBadData() {
	err := s.stubs.Apply(&Seed{Patients: []SeedPatient{{NHSNumber: "123"}}})
	assert.EqualError(s.T(), err, `seed patient "123": NHS Number must be exactly 10 digits`)

	err = s.stubs.Apply(&Seed{Organisations: []Organisation{{ASID: "asid"}}})
	assert.EqualError(s.T(), err, "seed organisation is missing an ods code")
}

func (s *StubsTestSuite) TestWatchSeedFile() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "seed.toml")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.stubs.WatchSeedFile(ctx, path) }()
	defer func() {
		cancel()
		assert.NoError(s.T(), <-done)
	}()

	// give the watcher time to register the directory
	time.Sleep(200 * time.Millisecond)

	family := strings.ToUpper(randomdata.LastName())
	assert.NoError(s.T(), os.WriteFile(path, []byte(seedTOML(family, randomdata.FirstName(randomdata.Female))), 0600))

	assert.Eventually(s.T(), func() bool {
		p, ok := s.patient("9000000017")
		return ok && p.patient.Name[0].Family == family
	}, 5*time.Second, 50*time.Millisecond)
}
