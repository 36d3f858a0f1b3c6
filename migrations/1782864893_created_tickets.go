package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.TextField{Name: "tenant_id", Required: true, Max: 64},
			&core.TextField{Name: "server_id", Max: 64},
			&core.TextField{Name: "scope_id", Required: true, Max: 130},
			&core.TextField{Name: "period", Required: true, Max: 10},
			&core.NumberField{Name: "number", Required: true, OnlyInt: true, Min: types.Pointer(1.0)},
			&core.TextField{Name: "code", Required: true, Max: 16},
			&core.TextField{Name: "fee", Max: 16},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"waiting", "serving", "served", "cancelled"},
			},
			&core.DateField{Name: "served_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// The allocator relies on this unique index to catch concurrent
		// writers reserving the same number.
		collection.AddIndex("idx_tickets_scope_period_number", true, "scope_id, period, number", "")
		collection.AddIndex("idx_tickets_scope_period_status", false, "scope_id, period, status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
