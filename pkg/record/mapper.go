package record

// Mapper materializes raw rows into records. Every row gets a record built
// from the schema, so a column missing from one row is nil rather than
// whatever the previous row held.
type Mapper struct {
	model *Model
}

func (m *Model) Mapper() *Mapper {
	return &Mapper{model: m}
}

// MapRow builds one record. Columns outside the schema are dropped.
func (mp *Mapper) MapRow(row map[string]any) (*Record, error) {
	r := mp.model.New()
	for name, v := range row {
		if !mp.model.schema.Has(name) {
			continue
		}
		cv, err := mp.model.schema.Coerce(name, v)
		if err != nil {
			return nil, err
		}
		r.values[name] = cv
	}
	return r, nil
}

func (mp *Mapper) MapRows(rows []map[string]any) ([]*Record, error) {
	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		r, err := mp.MapRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
