package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("queue_metrics")

		collection.Fields.Add(
			&core.TextField{Name: "tenant_id", Required: true, Max: 64},
			&core.TextField{Name: "server_id", Max: 64},
			&core.TextField{Name: "scope_id", Required: true, Max: 130},
			&core.TextField{Name: "period", Required: true, Max: 10},
			&core.NumberField{Name: "now_serving_token", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "avg_service_seconds", Min: types.Pointer(0.0)},
			&core.DateField{Name: "service_start_at"},
			&core.DateField{Name: "active_clock_at"},
			&core.DateField{Name: "break_started_at"},
			&core.DateField{Name: "break_until"},
			&core.TextField{Name: "breaking_entity_id", Max: 64},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// One row per scope; day rollover reuses it for the new period.
		collection.AddIndex("idx_queue_metrics_scope", true, "scope_id", "")
		collection.AddIndex("idx_queue_metrics_period", false, "period", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("queue_metrics")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
