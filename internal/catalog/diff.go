package catalog

// Diff partitions two snapshots by ExternalID.
type Diff struct {
	Added    []Record
	Removed  []Record
	Retained []Record
}

// Compute compares cur against prev. A nil prev treats every current record as
// added. Added and Retained follow cur order (Retained holds the current
// version of the record); Removed follows prev order.
func Compute(prev *Snapshot, cur Snapshot) Diff {
	var d Diff
	previous := map[string]struct{}{}
	if prev != nil {
		for _, rec := range prev.Records {
			previous[rec.ExternalID] = struct{}{}
		}
	}
	current := make(map[string]struct{}, len(cur.Records))
	for _, rec := range cur.Records {
		current[rec.ExternalID] = struct{}{}
		if _, ok := previous[rec.ExternalID]; ok {
			d.Retained = append(d.Retained, rec)
		} else {
			d.Added = append(d.Added, rec)
		}
	}
	if prev != nil {
		for _, rec := range prev.Records {
			if _, ok := current[rec.ExternalID]; !ok {
				d.Removed = append(d.Removed, rec)
			}
		}
	}
	return d
}

// Current returns the record set a completed sync persists: Added then Retained.
func (d Diff) Current() []Record {
	out := make([]Record, 0, len(d.Added)+len(d.Retained))
	out = append(out, d.Added...)
	return append(out, d.Retained...)
}
