package main

import (
	"context"
	"github.com/prometheus/client_golang/prometheus"
	"tapoctl/cli"
	"tapoctl/config"
	"tapoctl/device/tapo"
)

// metricsSnapshot writes the registry to a node_exporter textfile, but only
// once a device state has been read. Otherwise the gauges still hold rogue
// values, or nothing was registered at all.
type metricsSnapshot struct {
	path      string
	gatherer  prometheus.Gatherer
	stateRead bool
}

func newMetricsSnapshot(path string, gatherer prometheus.Gatherer) *metricsSnapshot {
	return &metricsSnapshot{path: path, gatherer: gatherer}
}

func (s *metricsSnapshot) observe(connect cli.Connector) cli.Connector {
	return func(ctx context.Context, invocation config.Invocation) (cli.Bulb, error) {
		bulb, err := connect(ctx, invocation)
		if err != nil {
			return nil, err
		}
		return &observedBulb{Bulb: bulb, snapshot: s}, nil
	}
}

// write reports whether a textfile was written.
func (s *metricsSnapshot) write() (bool, error) {
	if s.path == "" || !s.stateRead {
		return false, nil
	}
	if err := prometheus.WriteToTextfile(s.path, s.gatherer); err != nil {
		return false, err
	}
	return true, nil
}

type observedBulb struct {
	cli.Bulb
	snapshot *metricsSnapshot
}

func (b *observedBulb) GetDeviceInfo(ctx context.Context) (*tapo.DeviceInfo, error) {
	info, err := b.Bulb.GetDeviceInfo(ctx)
	if err == nil {
		b.snapshot.stateRead = true
	}
	return info, err
}
