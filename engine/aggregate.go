package engine

import "github.com/use-agent/jobsnap/models"

// Aggregate concatenates per-schema record sequences, preserving schema
// order and the document order within each schema. Nothing is merged or
// deduplicated.
func Aggregate(perSchema [][]models.JobRecord) []models.JobRecord {
	n := 0
	for _, recs := range perSchema {
		n += len(recs)
	}
	out := make([]models.JobRecord, 0, n)
	for _, recs := range perSchema {
		out = append(out, recs...)
	}
	return out
}
