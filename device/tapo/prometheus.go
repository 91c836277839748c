package tapo

import (
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"tapoctl/types"
)

type prometheusMetrics struct {
	commonLabels prometheus.Labels

	updateInfoMetric  func(info *DeviceInfo) error
	overheated        *prometheus.Gauge
	wifiRssi          *prometheus.Gauge
	signalLevel       *prometheus.Gauge
	deviceTurnedOn    *prometheus.Gauge
	brightness        *prometheus.Gauge
	colourTemperature *prometheus.Gauge
	hue               *prometheus.Gauge
	saturation        *prometheus.Gauge
}

func registerMetrics(registry prometheus.Registerer, commonLabels prometheus.Labels) *prometheusMetrics {
	metrics := prometheusMetrics{
		commonLabels: commonLabels,

		updateInfoMetric:  registerInfoMetricUpdater(registry, commonLabels),
		overheated:        types.NewGauge(registry, commonLabels, "tapo", "overheated_bool"),
		wifiRssi:          types.NewGauge(registry, commonLabels, "tapo", "wifi_rssi_db"),
		signalLevel:       types.NewGauge(registry, commonLabels, "tapo", "signal_level"),
		deviceTurnedOn:    types.NewGauge(registry, commonLabels, "tapo", "device_turned_on_bool"),
		brightness:        types.NewGauge(registry, commonLabels, "tapo", "bulb_brightness_percent"),
		colourTemperature: types.NewGauge(registry, commonLabels, "tapo", "bulb_colour_temperature_kelvin"),
		hue:               types.NewGauge(registry, commonLabels, "tapo", "bulb_hue"),
		saturation:        types.NewGauge(registry, commonLabels, "tapo", "bulb_saturation_percent"),
	}
	metrics.resetToRogueValues()
	return &metrics
}

func (metrics *prometheusMetrics) updateMetrics(info *DeviceInfo) error {
	if info == nil {
		metrics.resetToRogueValues()
		return nil
	}
	types.SetFromBool(metrics.overheated, info.Overheated)
	types.SetFromInt(metrics.wifiRssi, info.WifiRssi)
	types.SetFromInt(metrics.signalLevel, info.SignalLevel)
	types.SetFromBool(metrics.deviceTurnedOn, info.DeviceOn)
	types.SetFromInt(metrics.brightness, info.Brightness)
	types.SetFromInt(metrics.colourTemperature, info.ColourTemperature)
	types.SetFromInt(metrics.hue, info.Hue)
	types.SetFromInt(metrics.saturation, info.Saturation)
	if err := metrics.updateInfoMetric(info); err != nil {
		return fmt.Errorf("could not update info metric: %w", err)
	}
	return nil
}

func (metrics *prometheusMetrics) resetToRogueValues() {
	_ = metrics.updateInfoMetric(nil)
	types.SetIfPresent(metrics.overheated, -1.0)
	types.SetIfPresent(metrics.wifiRssi, +1.0) // nb: positive rogue value
	types.SetIfPresent(metrics.signalLevel, -1.0)
	types.SetIfPresent(metrics.deviceTurnedOn, -1.0)
	types.SetIfPresent(metrics.brightness, -1.0)
	types.SetIfPresent(metrics.colourTemperature, -1.0)
	types.SetIfPresent(metrics.hue, -1.0)
	types.SetIfPresent(metrics.saturation, -1.0)
}

func registerInfoMetricUpdater(registry prometheus.Registerer, commonLabels prometheus.Labels) func(info *DeviceInfo) error {
	var infoMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "device_info",
		Namespace:   "tapo",
		ConstLabels: commonLabels,
	}, []string{
		"alias", "device_id", "firmware_version", "hardware_id", "mac_address", "model_name", "oem_id", "device_type",
	})
	registry.MustRegister(infoMetric)
	return func(info *DeviceInfo) error {
		infoMetric.Reset()
		if info != nil {
			metricWithLabelValues, err := infoMetric.GetMetricWith(prometheus.Labels{
				"alias":            info.Nickname,
				"device_id":        info.DeviceId,
				"firmware_version": info.FirmwareVersion,
				"hardware_id":      info.HardwareId,
				"mac_address":      info.Mac,
				"model_name":       info.Model,
				"oem_id":           info.OemId,
				"device_type":      info.DeviceType,
			})
			if err != nil {
				return fmt.Errorf("could not generate label values for info metric: %w", err)
			}
			metricWithLabelValues.Set(1.0)
		}
		return nil
	}
}
