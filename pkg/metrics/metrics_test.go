package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			metricPrefixOpt := WithMetricPrefix("test-prefix")
			histogramBucketsOpt := WithHistogramBuckets([]float64{0.1, 0.5, 1.0})
			customLabelsOpt := WithCustomLabels(map[string]string{"env": "test"})

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(metricPrefixOpt, ShouldNotBeNil)
				So(histogramBucketsOpt, ShouldNotBeNil)
				So(customLabelsOpt, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the fanpulse namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "fanpulse")
				So(manager.subsystem, ShouldEqual, "engine")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("pfx"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test", "version": "1.0"}),
				WithPrometheusRegistry(registry),
			)
			manager.pingsIngested.Inc()

			Convey("Then metric names carry the namespace and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_pfx_pings_ingested_total" {
						found = true
						So(len(f.GetMetric()[0].GetLabel()), ShouldEqual, 2)
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ingestion metrics", func() {
			before := testutil.ToFloat64(globalManager.pingsIngested)
			RecordPingIngested()
			RecordPingDuplicate()
			RecordPingRejected("validation")
			RecordCheckin()
			RecordUsage()
			RecordRecordAppended("LOCATION")
			RecordRecordDropped()

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.pingsIngested), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.pingsRejected.WithLabelValues("validation")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording cache metrics", func() {
			So(func() {
				RecordCacheLookup("hit")
				RecordCacheLookup("miss")
				RecordCacheSwept(3)
				RecordCacheOpLatency("set", 0.2)
				UpdateLiveEntities(10)
				UpdateLiveVenues(2)
				UpdateCacheShardCount(16)
				UpdateCacheKeysPerShard("0", 4)
			}, ShouldNotPanic)

			Convey("Then gauges reflect the last value", func() {
				So(testutil.ToFloat64(globalManager.liveEntities), ShouldEqual, 10)
				So(testutil.ToFloat64(globalManager.liveVenues), ShouldEqual, 2)
			})
		})

		Convey("When recording analytics and storage metrics", func() {
			So(func() {
				RecordAnalyticsLatency("heatmap", 12)
				RecordAnalyticsWorkingSet("heatmap", 10000)
				RecordAnalyticsError("forecast", "not_found")
				RecordDashboardVenueSkipped()
				RecordStorageLatency("append", 1.5)
				RecordStorageError("query")
				UpdateBreakerState("record-log", 2)
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP, queue and worker metrics", func() {
			So(func() {
				RecordHTTPRequest("/v1/heatmap", "GET", "200")
				RecordHTTPRequestDuration("/v1/heatmap", "GET", "200", 5)
				UpdateQueueSize(5)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.05)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(0.1)
				UpdateWorkerCount(4)
				UpdateWorkerMessagesPerSecond(120)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
			}, ShouldNotPanic)
		})

		Convey("When recording error and system metrics", func() {
			So(func() {
				RecordErrorByComponent("worker", "append_error")
				RecordErrorByType("append_error", "high")
				RecordErrorByEndpoint("/v1/locations", "POST", "client_error")
				RecordErrorLatency("http", "client_error", 1)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.queueEnqueueRate)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					RecordQueueEnqueue()
				}
			}()
		}
		wg.Wait()

		Convey("Then no increment is lost", func() {
			So(testutil.ToFloat64(globalManager.queueEnqueueRate), ShouldEqual, before+1000)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	RecordPingIngested()
	families, err := GetRegistry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "fanpulse_engine_") {
			t.Errorf("unexpected metric outside namespace: %s", f.GetName())
		}
	}
}
