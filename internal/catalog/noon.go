package catalog

// NoonField is one column of the daily noon report and the placeholder
// sensor id its readings are filed under once melted to long format.
type NoonField struct {
	Name     string
	SensorID string
	Unit     string
}

const noonQIDPrefix = "0::0::0::0_0::0::0::0::0_0::0::0::0_"

// NoonReportFields lists the noon report columns in sheet order.
var NoonReportFields = []NoonField{
	{Name: "Slip", SensorID: noonQIDPrefix + "1", Unit: "%"},
	{Name: "Fwd Draft", SensorID: noonQIDPrefix + "2", Unit: "m"},
	{Name: "Mid Draft", SensorID: noonQIDPrefix + "3", Unit: "m"},
	{Name: "Aft Draft", SensorID: noonQIDPrefix + "4", Unit: "m"},
	{Name: "Displacement", SensorID: noonQIDPrefix + "5", Unit: "t"},
	{Name: "Air Temp", SensorID: noonQIDPrefix + "6", Unit: "°C"},
	{Name: "Bar Pressure", SensorID: noonQIDPrefix + "7", Unit: "Millibars"},
	{Name: "Sea State", SensorID: noonQIDPrefix + "8", Unit: "Douglas scale"},
	{Name: "Wind Force", SensorID: noonQIDPrefix + "9", Unit: "Beaufort"},
	{Name: "Sea Temp", SensorID: noonQIDPrefix + "10", Unit: "°C"},
	{Name: "Sea Direction", SensorID: noonQIDPrefix + "11", Unit: "°"},
	{Name: "Wind Direction", SensorID: noonQIDPrefix + "12", Unit: "°"},
	{Name: "Consumption for Propulsion", SensorID: noonQIDPrefix + "13", Unit: "MT/day"},
	{Name: "Fuel", SensorID: noonQIDPrefix + "14", Unit: "categorical"},
}

// DraftNoonFields are the noon report fields carried into the modelling
// dataset by default.
var DraftNoonFields = []string{"Fwd Draft", "Mid Draft", "Aft Draft"}

// NoonFieldMap returns a fresh name -> field lookup, restricted to names
// when names is non-empty.
func NoonFieldMap(names ...string) map[string]NoonField {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make(map[string]NoonField)
	for _, f := range NoonReportFields {
		if len(want) > 0 && !want[f.Name] {
			continue
		}
		out[f.Name] = f
	}
	return out
}
