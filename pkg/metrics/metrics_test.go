package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording reconciliation metrics", func() {
			So(func() {
				RecordEventApplied()
				RecordEventDuplicate()
				RecordEventUnresolved()
				RecordEventNonIdentifiable()
				RecordRollbackApplied()
				RecordRollbackOrphaned()
			}, ShouldNotPanic)
		})

		Convey("When recording catalog metrics", func() {
			So(func() {
				RecordRefresh()
				RecordRefreshError()
				RecordTaskCreated()
				RecordTaskCreateFailure()
			}, ShouldNotPanic)
		})

		Convey("When updating gauges", func() {
			So(func() {
				UpdateOverlaySize(3)
				UpdatePendingRollbacks(1)
				UpdateIdentitySize(42)
				UpdateExercisesTotal(7)
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("exercises", "GET", "200")
				RecordHTTPRequestDuration("exercises", "GET", "200", 1.5)
			}, ShouldNotPanic)
		})

		Convey("Then the registry should be available", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
