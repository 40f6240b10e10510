package migration

import "sort"

// Classify derives the state of every migration from the files on disk and
// the applied records of one module. It keeps no state and never mutates its
// inputs.
//
// A file with a record is LOADED. An unapplied file is CONFLICT when a later
// revision is applied, READY otherwise. A record without a file is NOT_EXIST.
func Classify(files []Migration, records []Record) []Status {
	applied := make(map[string]*Record, len(records))
	var maxApplied Revision
	for i := range records {
		rec := &records[i]
		applied[rec.Migration] = rec
		if r := recordRevision(*rec); r > maxApplied {
			maxApplied = r
		}
	}

	out := make([]Status, 0, len(files)+len(records))
	seen := make(map[string]bool, len(files))

	for i := range files {
		m := &files[i]
		seen[m.Name] = true
		st := Status{Name: m.Name, Revision: m.Revision, Migration: m}

		if rec, ok := applied[m.Name]; ok {
			st.Type = Loaded
			st.Record = rec
			st.Modified = rec.Checksum != "" && m.Checksum != "" && rec.Checksum != m.Checksum
		} else if len(records) > 0 && m.Revision < maxApplied {
			st.Type = Conflict
		} else {
			st.Type = Ready
		}
		out = append(out, st)
	}

	for i := range records {
		rec := &records[i]
		if seen[rec.Migration] {
			continue
		}
		out = append(out, Status{
			Name:     rec.Migration,
			Revision: recordRevision(*rec),
			Type:     NotExist,
			Record:   rec,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Revision != out[j].Revision {
			return out[i].Revision < out[j].Revision
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// recordRevision returns the revision of a record, falling back to the
// numeric prefix of its name for records written without one.
func recordRevision(rec Record) Revision {
	if rec.Revision != 0 {
		return Revision(rec.Revision)
	}
	if parsed, err := parseFilename(rec.Migration + upSuffix); err == nil {
		return Revision(parsed.Version)
	}
	return 0
}

func findStatus(statuses []Status, target string) (Status, bool) {
	rev, revErr := ParseRevision(target)
	for _, st := range statuses {
		if st.Name == target {
			return st, true
		}
	}
	if revErr == nil {
		for _, st := range statuses {
			if st.Revision == rev {
				return st, true
			}
		}
	}
	return Status{}, false
}
