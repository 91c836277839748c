package types

// DeviceState is the snapshot printed after every action. Field order is the
// order of the keys on the wire.
type DeviceState struct {
	Enabled    bool `json:"enabled"`
	Color      int  `json:"color"`
	Brightness int  `json:"brightness"`
}

type DeviceConfig struct {
	Ip   string
	Port uint16
}
