//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/storm-cmac-service/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-cmac-service/internal/config"
	"github.com/couchcryptid/storm-cmac-service/internal/synth"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

// startKafka runs a single-node broker and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("cmac-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       group + "-" + strconv.FormatInt(time.Now().UnixNano(), 10),
		BatchFlushInterval: 2 * time.Second,
	}
}

func testSite() config.Site {
	alt := 315.0
	return config.Site{
		Name:             "sgp_integration",
		SiteAlt:          &alt,
		AttenuationACoef: 0.17,
		ClutterField:     synth.ClutterField,
		Sonde:            config.Sonde{Temperature: synth.SoundingTemperature, Height: synth.SoundingHeight},
		Texture:          config.Texture{Start: 2.4, End: 2.7},
		Phase:            config.Phase{NoWrap: 50},
		Metadata:         map[string]any{"site_id": "sgp"},
	}
}

// writeInputs writes n synthetic volumes and one sounding to a temp dir.
func writeInputs(t *testing.T, n int) (radars []string, sonde string) {
	t.Helper()
	dir := t.TempDir()
	opts := synth.DefaultOptions()

	sonde = filepath.Join(dir, "sonde.nc")
	snd := synth.Sounding(opts)
	require.NoError(t, netcdf.WriteSounding(sonde, &snd))

	for i := range n {
		o := opts
		o.Time = opts.Time.Add(time.Duration(i) * 5 * time.Minute)
		o.CellAzimuth = opts.CellAzimuth + float64(10*i)
		path := filepath.Join(dir, "radar_"+strconv.Itoa(i)+".nc")
		require.NoError(t, netcdf.WriteVolume(path, synth.Volume(o)))
		radars = append(radars, path)
	}
	return radars, sonde
}
