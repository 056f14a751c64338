package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// scan_sessions is the local audit trail: one row per closed verification
// dialog. Canonical ticket/order state stays with the authority; this
// collection only records what each terminal did.
func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"name": "scan_sessions",
			"type": "base",
			"system": false,
			"fields": [
				{
					"name": "session_id",
					"type": "text",
					"required": true,
					"presentable": true
				},
				{
					"name": "operator_id",
					"type": "text",
					"required": true
				},
				{
					"name": "event_id",
					"type": "text",
					"required": false
				},
				{
					"name": "mode",
					"type": "select",
					"required": false,
					"values": ["manual", "camera"],
					"maxSelect": 1
				},
				{
					"name": "final_state",
					"type": "text",
					"required": false
				},
				{
					"name": "ticket_code",
					"type": "text",
					"required": false
				},
				{
					"name": "opened_at",
					"type": "date",
					"required": false
				},
				{
					"name": "closed_at",
					"type": "date",
					"required": false
				}
			],
			"indexes": [
				"CREATE INDEX idx_scan_sessions_code ON scan_sessions (ticket_code)",
				"CREATE INDEX idx_scan_sessions_operator ON scan_sessions (operator_id)"
			],
			"listRule": null,
			"viewRule": null,
			"createRule": null,
			"updateRule": null,
			"deleteRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("scan_sessions")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
