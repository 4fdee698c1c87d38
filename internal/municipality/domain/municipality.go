package domain

import (
	"errors"
	"time"
)

// Kind selects the MININTER integration profile a municipality transmits under.
// The two profiles differ only in a few payload fields and the endpoint; they
// form a closed set, so new kinds require a code change.
type Kind string

const (
	// KindSerenazgo is the municipal (serenazgo fleet) profile.
	KindSerenazgo Kind = "SERENAZGO"
	// KindPolicial is the police profile; requires a comisaria code.
	KindPolicial Kind = "POLICIAL"
)

// Municipality is a registered fleet owner whose GPS data is relayed to MININTER.
// The pipeline treats it as read-only; creation and edits happen in the
// external administrative surface.
type Municipality struct {
	ID string
	// Name is the display name of the municipality.
	Name string
	// TokenGPS authenticates fetches against GPServer. Unique per municipality.
	TokenGPS string
	// Ubigeo is the 6-digit administrative district code.
	Ubigeo string
	Tipo   Kind
	// CodigoComisaria is the police-station code; set iff Tipo is POLICIAL.
	CodigoComisaria string
	// Active gates sync eligibility; inactive municipalities are skipped.
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the invariants the registry must hold before persisting.
func (m *Municipality) Validate() error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	if m.TokenGPS == "" {
		return errors.New("token_gps is required")
	}
	if len(m.Ubigeo) != 6 {
		return errors.New("ubigeo must be 6 digits")
	}
	switch m.Tipo {
	case KindSerenazgo:
		if m.CodigoComisaria != "" {
			return errors.New("codigo_comisaria must be empty for SERENAZGO")
		}
	case KindPolicial:
		if m.CodigoComisaria == "" {
			return errors.New("codigo_comisaria is required for POLICIAL")
		}
	default:
		return errors.New("tipo must be SERENAZGO or POLICIAL")
	}
	return nil
}

// IsSerenazgo reports whether the municipality transmits under the municipal profile.
func (m *Municipality) IsSerenazgo() bool { return m.Tipo == KindSerenazgo }

// IsPolicial reports whether the municipality transmits under the police profile.
func (m *Municipality) IsPolicial() bool { return m.Tipo == KindPolicial }
