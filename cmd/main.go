package main

import (
	"context"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"os"
	"os/signal"
	"syscall"
	"tapoctl/cli"
	"tapoctl/config"
	"tapoctl/device/tapo"
)

func main() {
	env, err := config.ReadEnvironment(os.LookupEnv)
	logger := newLogger(env.LogLevel)
	if err != nil {
		_ = level.Error(logger).Log("msg", "invalid environment", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	registry := prometheus.NewRegistry()
	snapshot := newMetricsSnapshot(env.MetricsTextfile, registry)
	root := cli.NewRootCommand(snapshot.observe(connector(env, registry, logger)), logger)
	err = root.ExecuteContext(ctx)
	stop()
	if err != nil {
		_ = level.Error(logger).Log("msg", "tapoctl failed", "err", err)
		os.Exit(1)
	}

	if _, err := snapshot.write(); err != nil {
		_ = level.Warn(logger).Log("msg", "could not write metrics textfile", "path", env.MetricsTextfile, "err", err)
	}
}

func connector(env config.Environment, registry prometheus.Registerer, logger log.Logger) cli.Connector {
	return func(ctx context.Context, invocation config.Invocation) (cli.Bulb, error) {
		client := tapo.NewClient(invocation.Username, invocation.Password,
			tapo.WithPort(env.Port),
			tapo.WithTimeout(env.Timeout),
			tapo.WithLogger(logger),
			tapo.WithRegistry(registry))
		light, err := client.L530(ctx, invocation.DeviceIp)
		if err != nil {
			return nil, err
		}
		return light, nil
	}
}
