package store

import "github.com/pgvector/pgvector-go"

// vectorParam wraps a float slice for the vector column codec.
func vectorParam(vec []float32) pgvector.Vector {
	return pgvector.NewVector(vec)
}
