package local

import (
	"context"
	"fmt"

	"github.com/corticalco/engram/pkg/memory"
)

// Bulk applies create, update and delete items independently. A failed item
// is captured with its index, id (when known) and error message; the
// remaining items still run.
func (d *Driver) Bulk(ctx context.Context, items []memory.BulkItem) (*memory.BulkResult, error) {
	result := &memory.BulkResult{}

	for i, item := range items {
		var id string
		var err error

		switch item.Action {
		case memory.BulkCreate:
			if item.Create == nil {
				err = memory.ValidationError{Field: "create", Reason: "required for create action"}
				break
			}
			var record *memory.Record
			record, err = d.Store(ctx, item.Create)
			if record != nil {
				id = record.ID
			}
		case memory.BulkUpdate:
			if item.Update == nil {
				err = memory.ValidationError{Field: "update", Reason: "required for update action"}
				break
			}
			id = item.Update.ID
			_, err = d.Update(ctx, item.Update)
		case memory.BulkDelete:
			id = item.DeleteID
			var existed bool
			existed, err = d.Delete(ctx, item.DeleteID)
			if err == nil && !existed {
				err = memory.NotFoundError{ID: item.DeleteID}
			}
		default:
			err = memory.ValidationError{
				Field:  "action",
				Reason: fmt.Sprintf("unknown bulk action %q", item.Action),
			}
		}

		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, memory.BulkError{
				Index:   i,
				ID:      id,
				Message: err.Error(),
			})
			continue
		}
		result.Successful++
	}

	return result, nil
}
