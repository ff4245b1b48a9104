package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/drillbook/internal/adapters/catalog"
	feedbackbus "github.com/okian/drillbook/internal/adapters/mq/bus"
	service "github.com/okian/drillbook/internal/app"
	"github.com/okian/drillbook/internal/domain/model"
	"github.com/okian/drillbook/internal/domain/types"
	"github.com/okian/drillbook/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// seededSource returns a source with one exercise linked to task t-1.
func seededSource() *catalog.MemorySource {
	src := catalog.NewMemorySource()
	src.SeedExercises([]model.Exercise{{ID: "ex-1", Title: "Finish"}})
	src.SeedTasks([]model.Task{{ID: "t-1", Title: "Finish"}})
	src.SeedLinks([]model.ExplicitLink{{TaskID: "t-1", ExerciseID: "ex-1"}})
	return src
}

// startService starts a service over src with rollback-friendly timing:
// the debounced refetch is pushed far out so tests control Refresh.
func startService(src catalog.Source, opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithSource(src),
		service.WithRefreshDebounce(time.Hour),
	}, opts...)
	svc := service.New(opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func viewOf(svc *service.Service, id string) (types.ExerciseView, bool) {
	views, err := svc.Exercises(context.Background())
	So(err, ShouldBeNil)
	for _, v := range views {
		if v.ID == id {
			return v, true
		}
	}
	return types.ExerciseView{}, false
}

func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then reads before Start fail", func() {
			_, err := svc.Exercises(ctx)
			So(err, ShouldEqual, service.ErrNotStarted)
			So(svc.Refresh(ctx), ShouldEqual, service.ErrNotStarted)
		})
	})

	Convey("Given a started service", t, func() {
		svc := startService(seededSource())
		defer svc.Stop()

		Convey("Then it reports started stats", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["exercises"], ShouldEqual, 1)
		})

		Convey("When stopping", func() {
			svc.Stop()

			Convey("Then reads fail and publish is rejected", func() {
				_, err := svc.Exercises(ctx)
				So(err, ShouldEqual, service.ErrNotStarted)
				So(svc.Publish(ctx, model.FeedbackSaveFailed{}), ShouldBeFalse)
			})

			Convey("And stopping again is a no-op", func() {
				So(svc.Stop, ShouldNotPanic)
			})
		})
	})

	Convey("Given a source that fails its first fetches", t, func() {
		calls := 0
		src := catalog.NewMemorySource(catalog.WithFetchFault(func() error {
			calls++
			if calls <= 3 {
				return catalog.ErrUnavailable
			}
			return nil
		}))
		src.SeedExercises([]model.Exercise{{ID: "ex-1", Title: "Finish"}})

		Convey("When starting", func() {
			svc := service.New(service.WithSource(src), service.WithRefreshDebounce(time.Hour))
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then the service is up with an empty catalog", func() {
				views, err := svc.Exercises(ctx)
				So(err, ShouldBeNil)
				So(views, ShouldBeEmpty)
			})

			Convey("And a retried refresh succeeds", func() {
				So(svc.Refresh(ctx), ShouldBeNil)
				views, err := svc.Exercises(ctx)
				So(err, ShouldBeNil)
				So(views, ShouldHaveLength, 1)
			})
		})
	})
}

func TestLinkageHydration(t *testing.T) {
	ctx := context.Background()

	Convey("Given tasks created outside this screen", t, func() {
		src := catalog.NewMemorySource()
		src.SeedExercises([]model.Exercise{
			{ID: "ex-1", Title: "Finish", Description: "near post"},
			{ID: "ex-2", Title: "Wall Pass"},
		})
		src.SeedTasks([]model.Task{{ID: "t-1", Title: "finish", Description: "Near  Post"}})

		svc := startService(src)
		defer svc.Stop()

		Convey("Then signature inference marks the matching exercise added", func() {
			v1, ok := viewOf(svc, "ex-1")
			So(ok, ShouldBeTrue)
			So(v1.Added, ShouldBeTrue)

			v2, _ := viewOf(svc, "ex-2")
			So(v2.Added, ShouldBeFalse)
		})

		Convey("And feedback for the inferred template reaches the exercise", func() {
			svc.HandleFeedbackSaved(ctx, model.FeedbackSaved{
				TemplateID: "t-1", ActivityID: "a-1", TaskInstanceID: "ti-1",
				Rating: model.Score(7), OptimisticID: "o-1",
			})
			v, _ := viewOf(svc, "ex-1")
			So(v.ExecutionCount, ShouldEqual, 1)
			So(*v.LastScore, ShouldEqual, 7)
		})
	})

	Convey("Given two exercises with identical signatures and one matching task", t, func() {
		src := catalog.NewMemorySource()
		src.SeedExercises([]model.Exercise{
			{ID: "ex-1", Title: "Finish"},
			{ID: "ex-2", Title: "finish"},
		})
		src.SeedTasks([]model.Task{{ID: "t-1", Title: "Finish"}})

		svc := startService(src)
		defer svc.Stop()

		Convey("Then neither exercise is mapped or marked added", func() {
			v1, _ := viewOf(svc, "ex-1")
			v2, _ := viewOf(svc, "ex-2")
			So(v1.Added, ShouldBeFalse)
			So(v2.Added, ShouldBeFalse)
		})
	})
}

func TestFeedbackReconciliation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a linked exercise with no prior execution", t, func() {
		svc := startService(seededSource())
		defer svc.Stop()

		saved := model.FeedbackSaved{
			TemplateID: "t-1", ActivityID: "a-1", TaskInstanceID: "ti-1",
			Rating: model.Score(8), OptimisticID: "o-1",
		}

		Convey("When a feedback-saved event arrives", func() {
			svc.HandleFeedbackSaved(ctx, saved)

			Convey("Then the displayed counters become 8 and 1", func() {
				v, ok := viewOf(svc, "ex-1")
				So(ok, ShouldBeTrue)
				So(*v.LastScore, ShouldEqual, 8)
				So(v.ExecutionCount, ShouldEqual, 1)
			})

			Convey("And a duplicate delivery of the same event changes nothing", func() {
				svc.HandleFeedbackSaved(ctx, saved)
				v, _ := viewOf(svc, "ex-1")
				So(*v.LastScore, ShouldEqual, 8)
				So(v.ExecutionCount, ShouldEqual, 1)
			})

			Convey("And the matching save-failed restores the pre-event values", func() {
				svc.HandleFeedbackSaveFailed(ctx, model.FeedbackSaveFailed{OptimisticID: "o-1"})
				v, _ := viewOf(svc, "ex-1")
				So(v.LastScore, ShouldBeNil)
				So(v.ExecutionCount, ShouldEqual, 0)

				Convey("And a corrected retry can increment again", func() {
					retry := saved
					retry.OptimisticID = "o-2"
					retry.Rating = model.Score(9)
					svc.HandleFeedbackSaved(ctx, retry)
					v, _ := viewOf(svc, "ex-1")
					So(*v.LastScore, ShouldEqual, 9)
					So(v.ExecutionCount, ShouldEqual, 1)
				})
			})

			Convey("And an edit of the same execution keeps the count at 1", func() {
				edit := model.FeedbackSaved{
					TemplateID: "t-1", ActivityID: "a-1", TaskInstanceID: "ti-1",
					Rating: model.Score(6), OptimisticID: "o-2",
				}
				svc.HandleFeedbackSaved(ctx, edit)
				v, _ := viewOf(svc, "ex-1")
				So(*v.LastScore, ShouldEqual, 6)
				So(v.ExecutionCount, ShouldEqual, 1)
			})

			Convey("And a second distinct execution increments to 2", func() {
				second := model.FeedbackSaved{
					TemplateID: "t-1", ActivityID: "a-2", TaskInstanceID: "ti-2",
					Rating: model.Score(5), OptimisticID: "o-3",
				}
				svc.HandleFeedbackSaved(ctx, second)
				v, _ := viewOf(svc, "ex-1")
				So(v.ExecutionCount, ShouldEqual, 2)
			})
		})

		Convey("When the event references an unlinked template", func() {
			svc.HandleFeedbackSaved(ctx, model.FeedbackSaved{
				TemplateID: "t-unknown", ActivityID: "a-1", TaskInstanceID: "ti-1",
				Rating: model.Score(4), OptimisticID: "o-9",
			})

			Convey("Then counters stay untouched", func() {
				v, _ := viewOf(svc, "ex-1")
				So(v.LastScore, ShouldBeNil)
				So(v.ExecutionCount, ShouldEqual, 0)
			})
		})

		Convey("When the event is missing its activity reference", func() {
			svc.HandleFeedbackSaved(ctx, model.FeedbackSaved{
				TemplateID: "t-1", Rating: model.Score(4), OptimisticID: "o-9",
			})

			Convey("Then the score updates but the count never increments", func() {
				v, _ := viewOf(svc, "ex-1")
				So(*v.LastScore, ShouldEqual, 4)
				So(v.ExecutionCount, ShouldEqual, 0)
			})
		})

		Convey("When the event is missing the task instance reference", func() {
			svc.HandleFeedbackSaved(ctx, model.FeedbackSaved{
				TemplateID: "t-1", ActivityID: "a-1",
				Rating: model.Score(4), OptimisticID: "o-9",
			})

			Convey("Then the template id stands in and the count increments once", func() {
				v, _ := viewOf(svc, "ex-1")
				So(v.ExecutionCount, ShouldEqual, 1)
			})
		})

		Convey("When a save-failed arrives with no matching pending save", func() {
			svc.HandleFeedbackSaveFailed(ctx, model.FeedbackSaveFailed{OptimisticID: "o-404"})

			Convey("Then nothing changes", func() {
				v, _ := viewOf(svc, "ex-1")
				So(v.LastScore, ShouldBeNil)
				So(v.ExecutionCount, ShouldEqual, 0)
			})
		})
	})

	Convey("Given an exercise whose fetched counters are non-zero", t, func() {
		src := seededSource()
		src.SeedExercises([]model.Exercise{{
			ID: "ex-1", Title: "Finish",
			LastScore: model.Score(5), ExecutionCount: model.Count(4),
		}})
		svc := startService(src)
		defer svc.Stop()

		Convey("When a new execution is saved", func() {
			svc.HandleFeedbackSaved(ctx, model.FeedbackSaved{
				TemplateID: "t-1", ActivityID: "a-1", TaskInstanceID: "ti-1",
				Rating: model.Score(8), OptimisticID: "o-1",
			})

			Convey("Then the fetched count is the baseline", func() {
				v, _ := viewOf(svc, "ex-1")
				So(v.ExecutionCount, ShouldEqual, 5)
				So(*v.LastScore, ShouldEqual, 8)
			})

			Convey("And a rollback restores the fetched values exactly", func() {
				svc.HandleFeedbackSaveFailed(ctx, model.FeedbackSaveFailed{OptimisticID: "o-1"})
				v, _ := viewOf(svc, "ex-1")
				So(*v.LastScore, ShouldEqual, 5)
				So(v.ExecutionCount, ShouldEqual, 4)
			})

			Convey("And a refetch does not clear the override", func() {
				So(svc.Refresh(ctx), ShouldBeNil)
				v, _ := viewOf(svc, "ex-1")
				So(v.ExecutionCount, ShouldEqual, 5)
				So(*v.LastScore, ShouldEqual, 8)
			})

			Convey("And after a refetch the save counts as confirmed", func() {
				So(svc.Refresh(ctx), ShouldBeNil)
				svc.HandleFeedbackSaveFailed(ctx, model.FeedbackSaveFailed{OptimisticID: "o-1"})

				v, _ := viewOf(svc, "ex-1")
				So(v.ExecutionCount, ShouldEqual, 5)

				Convey("And a duplicate delivery is still skipped", func() {
					svc.HandleFeedbackSaved(ctx, model.FeedbackSaved{
						TemplateID: "t-1", ActivityID: "a-1", TaskInstanceID: "ti-1",
						Rating: model.Score(8), OptimisticID: "o-1",
					})
					v, _ := viewOf(svc, "ex-1")
					So(v.ExecutionCount, ShouldEqual, 5)
				})
			})
		})
	})
}

func TestAddTask(t *testing.T) {
	ctx := context.Background()

	Convey("Given a catalog with an unconverted exercise", t, func() {
		src := catalog.NewMemorySource()
		src.SeedExercises([]model.Exercise{{ID: "ex-1", Title: "Finish"}})
		svc := startService(src)
		defer svc.Stop()

		Convey("When adding the exercise", func() {
			task, err := svc.AddTask(ctx, "ex-1")

			Convey("Then the task is created and the exercise flagged added", func() {
				So(err, ShouldBeNil)
				So(task.ID, ShouldNotBeEmpty)
				v, _ := viewOf(svc, "ex-1")
				So(v.Added, ShouldBeTrue)
			})

			Convey("And feedback for the new task reaches the exercise", func() {
				svc.HandleFeedbackSaved(ctx, model.FeedbackSaved{
					TemplateID: task.ID, ActivityID: "a-1", TaskInstanceID: "ti-1",
					Rating: model.Score(8), OptimisticID: "o-1",
				})
				v, _ := viewOf(svc, "ex-1")
				So(v.ExecutionCount, ShouldEqual, 1)
			})

			Convey("And deleting the task externally clears flag and linkage together", func() {
				src.DeleteTask(task.ID)
				So(svc.Refresh(ctx), ShouldBeNil)

				v, _ := viewOf(svc, "ex-1")
				So(v.Added, ShouldBeFalse)
			})
		})

		Convey("When task creation fails", func() {
			failing := catalog.NewMemorySource(
				catalog.WithCreateFault(func() error { return catalog.ErrCreateFailed }),
			)
			failing.SeedExercises([]model.Exercise{{ID: "ex-1", Title: "Finish"}})
			fsvc := startService(failing)
			defer fsvc.Stop()

			_, err := fsvc.AddTask(ctx, "ex-1")

			Convey("Then neither the flag nor the linkage is set", func() {
				So(err, ShouldNotBeNil)
				v, _ := viewOf(fsvc, "ex-1")
				So(v.Added, ShouldBeFalse)
			})
		})

		Convey("When adding an unknown exercise", func() {
			_, err := svc.AddTask(ctx, "ex-404")

			Convey("Then the unknown-exercise kind is returned", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown exercise")
			})
		})
	})
}

func TestBusDrivenReconciliation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service consuming a feedback bus", t, func() {
		b := feedbackbus.NewInMemoryBus()
		svc := startService(seededSource(), service.WithBus(b))
		defer svc.Stop()

		Convey("When the feedback subsystem publishes a save", func() {
			ok := b.Publish(ctx, model.FeedbackSaved{
				TemplateID: "t-1", ActivityID: "a-1", TaskInstanceID: "ti-1",
				Rating: model.Score(8), OptimisticID: "o-1",
			})
			So(ok, ShouldBeTrue)

			Convey("Then the counters converge", func() {
				converged := eventually(2*time.Second, func() bool {
					v, found := viewOfQuiet(svc, "ex-1")
					return found && v.ExecutionCount == 1
				})
				So(converged, ShouldBeTrue)
			})

			Convey("And a published failure rolls the counters back", func() {
				So(eventually(2*time.Second, func() bool {
					v, found := viewOfQuiet(svc, "ex-1")
					return found && v.ExecutionCount == 1
				}), ShouldBeTrue)

				So(b.Publish(ctx, model.FeedbackSaveFailed{OptimisticID: "o-1"}), ShouldBeTrue)
				So(eventually(2*time.Second, func() bool {
					v, found := viewOfQuiet(svc, "ex-1")
					return found && v.ExecutionCount == 0 && v.LastScore == nil
				}), ShouldBeTrue)
			})
		})

		Convey("When the service stops", func() {
			svc.Stop()

			Convey("Then no handler fires for later events", func() {
				b.Publish(ctx, model.FeedbackSaved{
					TemplateID: "t-1", ActivityID: "a-9", TaskInstanceID: "ti-9",
					Rating: model.Score(3), OptimisticID: "o-9",
				})
				time.Sleep(50 * time.Millisecond)
				_, err := svc.Exercises(ctx)
				So(err, ShouldEqual, service.ErrNotStarted)
			})
		})
	})
}

// viewOfQuiet is viewOf without goconvey assertions, for polling loops.
func viewOfQuiet(svc *service.Service, id string) (types.ExerciseView, bool) {
	views, err := svc.Exercises(context.Background())
	if err != nil {
		return types.ExerciseView{}, false
	}
	for _, v := range views {
		if v.ID == id {
			return v, true
		}
	}
	return types.ExerciseView{}, false
}
