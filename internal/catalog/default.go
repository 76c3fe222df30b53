package catalog

import (
	"bytes"
	_ "embed"
)

//go:embed default_catalog.csv
var defaultCatalogCSV []byte

// Default returns the built-in catalog of the vessel's sensor network:
// 15s onboard instruments and alarm-monitoring channels, 3600s weather
// provider feeds and the daily noon report drafts. It panics if the
// embedded file is malformed, which can only happen at build time.
func Default() *Catalog {
	c, err := LoadCSV(bytes.NewReader(defaultCatalogCSV))
	if err != nil {
		panic("catalog: embedded default catalog: " + err.Error())
	}
	return c
}
