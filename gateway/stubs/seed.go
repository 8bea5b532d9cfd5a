package stubs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/NHSDigital/clinical-data-gateway-api/gateway/constants"
	models "github.com/NHSDigital/clinical-data-gateway-api/gateway/models/fhir"
	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/dimchansky/utfbom"
	"github.com/howeyc/fsnotify"
	"github.com/pkg/errors"
)

// Seed is extra stub data loaded from a TOML file, for example:
//
//	[[patient]]
//	nhs_number = "9000000017"
//	family = "Doe"
//	given = ["John"]
//	gp_ods = "NEWGP"
//	record = true
//
//	[[organisation]]
//	ods = "NEWGP"
//	asid = "asid_NEWGP"
//	party_key = "NEWGP-0000900"
//	address = "https://newgp.example.com/fhir"
type Seed struct {
	Patients      []SeedPatient  `toml:"patient"`
	Organisations []Organisation `toml:"organisation"`
}

type SeedPatient struct {
	NHSNumber string   `toml:"nhs_number"`
	Family    string   `toml:"family"`
	Given     []string `toml:"given"`
	Gender    string   `toml:"gender"`
	BirthDate string   `toml:"birth_date"`
	GPODS     string   `toml:"gp_ods"`
	Version   int      `toml:"version"`
	// Record also stores a structured record for the patient in the provider stub.
	Record bool `toml:"record"`
}

var wholeLife = &models.Period{Start: "1900-01-01", End: "9999-12-31"}

func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "could not open seed file")
	}
	defer f.Close()

	var seed Seed
	if _, err := toml.DecodeReader(utfbom.SkipOnly(f), &seed); err != nil {
		return nil, errors.Wrapf(err, "could not parse seed file %s", path)
	}
	return &seed, nil
}

// Apply adds the seed's organisations and patients. Organisations with the
// same ODS code and patients with the same NHS number are replaced; nothing
// else already held is removed.
func (s *Stubs) Apply(seed *Seed) error {
	for _, org := range seed.Organisations {
		if org.ODS == "" {
			return errors.New("seed organisation is missing an ods code")
		}
		s.SDS.AddOrganisation(org)
	}

	for _, p := range seed.Patients {
		patient := models.Patient{
			Identifier: []models.Identifier{{System: constants.NHSNumberSystem, Value: p.NHSNumber}},
			Name:       []models.HumanName{{Use: "official", Family: p.Family, Given: p.Given, Period: wholeLife}},
			Gender:     p.Gender,
			BirthDate:  p.BirthDate,
		}
		if p.GPODS != "" {
			patient.GeneralPractitioner = []models.Reference{{
				Identifier: &models.Identifier{System: constants.ODSOrganisationSystem, Value: p.GPODS, Period: wholeLife},
			}}
		}

		version := p.Version
		if version == 0 {
			version = 1
		}
		if err := s.PDS.UpsertPatient(p.NHSNumber, patient, version); err != nil {
			return errors.Wrapf(err, "seed patient %q", p.NHSNumber)
		}
		if p.Record {
			if err := s.Provider.SetRecord(p.NHSNumber, patient); err != nil {
				return errors.Wrapf(err, "seed patient %q", p.NHSNumber)
			}
		}
	}
	return nil
}

// ApplySeedFile loads path and applies it.
func (s *Stubs) ApplySeedFile(path string) error {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	return s.Apply(seed)
}

// WatchSeedFile re-applies path whenever it is written until ctx is done.
// The containing directory is watched so editors that replace the file are
// picked up too.
func (s *Stubs) WatchSeedFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "could not create seed file watcher")
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Watch(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "could not watch seed file")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-watcher.Event:
			if ev == nil || filepath.Clean(ev.Name) != path || !(ev.IsCreate() || ev.IsModify()) {
				continue
			}
			if err := s.ApplySeedFile(path); err != nil {
				log.Mock.WithError(err).Warn("Could not reload stub seed file")
				continue
			}
			log.Mock.WithField("seed_file", path).Info("Reloaded stub seed file")
		case err := <-watcher.Error:
			log.Mock.WithError(err).Warn("Seed file watcher error")
		}
	}
}
