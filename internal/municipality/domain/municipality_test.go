package domain

import "testing"

func valid() Municipality {
	return Municipality{
		ID:       "m-1",
		Name:     "Municipalidad de Tacna",
		TokenGPS: "abcdef0123456789",
		Ubigeo:   "230101",
		Tipo:     KindSerenazgo,
		Active:   true,
	}
}

func TestValidate_Serenazgo(t *testing.T) {
	m := valid()
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	m.CodigoComisaria = "123456"
	if err := m.Validate(); err == nil {
		t.Error("SERENAZGO with codigo_comisaria should fail")
	}
}

func TestValidate_Policial(t *testing.T) {
	m := valid()
	m.Tipo = KindPolicial
	if err := m.Validate(); err == nil {
		t.Error("POLICIAL without codigo_comisaria should fail")
	}
	m.CodigoComisaria = "230145"
	if err := m.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_Required(t *testing.T) {
	for _, mutate := range []func(*Municipality){
		func(m *Municipality) { m.Name = "" },
		func(m *Municipality) { m.TokenGPS = "" },
		func(m *Municipality) { m.Ubigeo = "1501" },
		func(m *Municipality) { m.Tipo = "OTRO" },
	} {
		m := valid()
		mutate(&m)
		if err := m.Validate(); err == nil {
			t.Errorf("Validate should fail for %+v", m)
		}
	}
}
