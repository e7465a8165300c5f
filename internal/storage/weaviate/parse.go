package weaviate

import (
	"github.com/weaviate/weaviate/entities/models"
)

// parseCandidates unpacks the nested Get.<class> shape the GraphQL SDK
// returns as map[string]interface{}.
func parseCandidates(resp *models.GraphQLResponse, class string) ([]Candidate, error) {
	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := get[class].([]interface{})
	if !ok {
		return nil, nil
	}

	out := make([]Candidate, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		cand := Candidate{
			Identifier:     stringField(obj, "identifier"),
			OntologyType:   stringField(obj, "ontologyType"),
			Annotation:     stringField(obj, "annotation"),
			SourceResource: stringField(obj, "sourceResource"),
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if c, ok := additional["certainty"].(float64); ok {
				cand.Certainty = c
			}
		}
		out = append(out, cand)
	}
	return out, nil
}

func stringField(obj map[string]interface{}, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}
