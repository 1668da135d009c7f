package model

import "encoding/json"

// RawGradingResponse is the document returned by a grading provider.
// Copies stay undecoded so that one bad entry does not spoil the batch.
type RawGradingResponse struct {
	Resultat map[string]json.RawMessage `json:"resultat"`
}

// RawCopy is one graded copy as reported by a grading provider.
// Numeric fields are kept raw: providers send numbers, numeric strings or nothing.
type RawCopy struct {
	NoteTotale json.RawMessage `json:"note_totale,omitempty"`
	NomFichier string          `json:"nom_fichier,omitempty"`
	DBID       string          `json:"db_id,omitempty"`
	Questions  []RawQuestion   `json:"questions"`
}

// RawQuestion is one graded question as reported by a grading provider.
type RawQuestion struct {
	Num         json.RawMessage `json:"num,omitempty"`
	Type        string          `json:"type,omitempty"`
	Reponse     *string         `json:"reponse,omitempty"`
	Point       json.RawMessage `json:"point"`
	MaxPoints   json.RawMessage `json:"max_points,omitempty"`
	Commentaire string          `json:"commentaire,omitempty"`
}
