package logic

import (
	"fmt"
	"math"
)

// Datagram field layout, as bit index ranges [from, to).
const (
	addressFrom, addressTo         = 0, 8
	temperatureFrom, temperatureTo = 16, 28
	humidityFrom, humidityTo       = 28, 36
	batteryBit                     = 13
	channelHighBit                 = 38
	channelLowBit                  = 39

	// temperatureOffset is the raw value for 0.0°F; the raw unit is 0.1°F.
	temperatureOffset = 900
)

// Decode extracts the reading from a completed frame. The protocol has no
// checksum, so every frame decodes.
func Decode(f Frame) Reading {
	addr := uint8(f.Field(addressFrom, addressTo))
	tRaw := uint16(f.Field(temperatureFrom, temperatureTo))
	hRaw := uint8(f.Field(humidityFrom, humidityTo))

	var ch uint8
	if f[channelLowBit] {
		ch++
	}
	if f[channelHighBit] {
		ch += 2
	}

	tempF := float64(int(tRaw)-temperatureOffset) / 10.0

	return Reading{
		Address:        addr,
		Channel:        ch,
		TemperatureRaw: tRaw,
		HumidityRaw:    hRaw,
		TemperatureF:   tempF,
		TemperatureC:   FahrenheitToCelsius(tempF),
		Humidity:       humidityFromRaw(hRaw),
		BatteryLow:     f[batteryBit],
	}
}

// FahrenheitToCelsius converts and rounds to one decimal place.
func FahrenheitToCelsius(f float64) float64 {
	return math.Round((f-32)*5/9*10) / 10
}

// humidityFromRaw reproduces the sensor's display encoding: the raw byte is
// printed as two hex digits and the result read back as a decimal number,
// stopping at the first non-digit (0x41 -> 41, 0x4a -> 4, 0xa5 -> 0).
func humidityFromRaw(raw uint8) int {
	n := 0
	for _, c := range fmt.Sprintf("%02x", raw) {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// SensorAddress renders the address as two lowercase hex characters.
func (r Reading) SensorAddress() string {
	return fmt.Sprintf("%02x", r.Address)
}
