package pipeline

import (
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// MapRecords renames fields according to maps. Output fields follow mapping
// order and fields no mapping names are dropped. A source field missing from
// a record leaves the destination field out of that record. With no mappings
// configured, records pass through unchanged.
func MapRecords(records []*models.Record, maps []models.FieldMap) ([]*models.Record, error) {
	if len(maps) == 0 {
		return records, nil
	}
	if err := models.ValidateFieldMappings(maps); err != nil {
		return nil, err
	}

	out := make([]*models.Record, len(records))
	for i, r := range records {
		mapped := models.NewRecord(len(maps))
		for _, m := range maps {
			if v, ok := r.GetData(m.SourceField); ok {
				mapped.SetData(m.DestinationField, v)
			}
		}
		out[i] = mapped
	}
	return out, nil
}

// DestinationFields returns the destination side of maps in order.
func DestinationFields(maps []models.FieldMap) []string {
	fields := make([]string, len(maps))
	for i, m := range maps {
		fields[i] = m.DestinationField
	}
	return fields
}
