package discovery

// https://www.home-assistant.io/integrations/sensor/#device-class
type DeviceClass string

var DeviceClassGas DeviceClass = "gas"

// https://developers.home-assistant.io/docs/core/entity/sensor/#available-state-classes
type StateClass string

var StateClassMeasurement StateClass = "measurement"
var StateClassTotalIncreasing StateClass = "total_increasing"

const (
	UnitCubicMeter   = "m³"
	UnitKilowattHour = "kWh"
)

type SensorDefinition struct {
	Key         string
	Name        string
	Unit        string
	DeviceClass DeviceClass
	StateClass  StateClass
}

// Sensors is the fixed set announced for every gas reader.
// energy device class needs total or total_increasing state class, daily kWh counters are plain measurements so they stay class-less.
var Sensors = []SensorDefinition{
	{Key: "gastotal", Name: "Zaehlerstand", Unit: UnitCubicMeter, DeviceClass: DeviceClassGas, StateClass: StateClassTotalIncreasing},
	{Key: "value", Name: "Zaehlung seit Nullung", Unit: UnitCubicMeter, StateClass: StateClassMeasurement},
	{Key: "today_m3", Name: "Verbrauch Volumen heute", Unit: UnitCubicMeter, StateClass: StateClassMeasurement},
	{Key: "today_kwh", Name: "Verbrauch Energie heute", Unit: UnitKilowattHour, StateClass: StateClassMeasurement},
	{Key: "yesterday_m3", Name: "Verbrauch Volumen gestern", Unit: UnitCubicMeter, StateClass: StateClassMeasurement},
	{Key: "yesterday_kwh", Name: "Verbrauch Energie gestern", Unit: UnitKilowattHour, StateClass: StateClassMeasurement},
	{Key: "db_yesterday_m3", Name: "Verbrauch Volumen vorgestern", Unit: UnitCubicMeter, StateClass: StateClassMeasurement},
	{Key: "db_yesterday_kwh", Name: "Verbrauch Energie vorgestern", Unit: UnitKilowattHour, StateClass: StateClassMeasurement},
}
