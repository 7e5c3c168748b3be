package payload

import "github.com/yukikurage/annotation-api/internal/models"

var schemas = map[models.AnnotationKind]string{
	models.KindBoundingBox: `{
		"type": "object",
		"required": ["x", "y", "width", "height"],
		"properties": {
			"x": {"type": "number"},
			"y": {"type": "number"},
			"width": {"type": "number", "minimum": 0},
			"height": {"type": "number", "minimum": 0}
		}
	}`,
	models.KindPolygon: `{
		"type": "object",
		"required": ["points"],
		"properties": {
			"points": {
				"type": "array",
				"minItems": 3,
				"items": {
					"type": "array",
					"minItems": 2,
					"maxItems": 2,
					"items": {"type": "number"}
				}
			}
		}
	}`,
	models.KindKeypoint: `{
		"type": "object",
		"required": ["points"],
		"properties": {
			"points": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["x", "y"],
					"properties": {
						"x": {"type": "number"},
						"y": {"type": "number"},
						"name": {"type": "string"},
						"visible": {"type": "boolean"}
					}
				}
			}
		}
	}`,
	models.KindClassification: `{
		"type": "object",
		"properties": {
			"value": {"type": "string"},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`,
	models.KindRegression: `{
		"type": "object",
		"required": ["value"],
		"properties": {
			"value": {"type": "number"}
		}
	}`,
	models.KindRanking: `{
		"type": "object",
		"required": ["ranking"],
		"properties": {
			"ranking": {"type": "string"}
		}
	}`,
}
