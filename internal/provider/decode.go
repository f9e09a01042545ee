package provider

import (
	"strconv"
	"strings"

	"plate-alert-service/internal/utils"
)

// Default confidences for response shapes that carry plate text without a score.
const (
	bareStringConfidence = 0.9
	plateFieldConfidence = 0.8
	ocrTextConfidence    = 0.7
)

const minPercentConfidence = 2

// Extraction is the plate text and confidence decoded from a provider response.
type Extraction struct {
	Plate      string
	RawPlate   string
	Confidence float64
	Shape      string
}

type shapeDecoder struct {
	name   string
	decode func(Response) (text string, confidence float64, ok bool)
}

// Shapes are tried in order; the first one yielding a usable plate wins.
var shapeDecoders = []shapeDecoder{
	{name: "workflow_outputs", decode: decodeWorkflowOutputs},
	{name: "plate_field", decode: decodePlateField},
	{name: "ocr_text", decode: decodeOCRText},
}

// Extract decodes plate text from resp and normalizes it. It returns false when no
// shape yields a plate of plausible length.
func Extract(resp Response) (Extraction, bool) {
	for _, d := range shapeDecoders {
		text, confidence, ok := d.decode(resp)
		if !ok {
			continue
		}
		plate, ok := utils.NormalizePlate(text)
		if !ok || !utils.ValidPlateLength(plate) {
			continue
		}
		return Extraction{
			Plate:      plate,
			RawPlate:   text,
			Confidence: confidence,
			Shape:      d.name,
		}, true
	}
	return Extraction{}, false
}

// {"outputs": [{"output": [{"text": "...", "confidence": 0.93}]}]} or a bare string item.
func decodeWorkflowOutputs(resp Response) (string, float64, bool) {
	outputs, ok := resp["outputs"].([]interface{})
	if !ok || len(outputs) == 0 {
		return "", 0, false
	}
	first, ok := outputs[0].(map[string]interface{})
	if !ok {
		return "", 0, false
	}

	item := first["output"]
	if list, ok := item.([]interface{}); ok {
		if len(list) == 0 {
			return "", 0, false
		}
		item = list[0]
	}

	switch v := item.(type) {
	case map[string]interface{}:
		text, _ := v["text"].(string)
		if strings.TrimSpace(text) == "" {
			return "", 0, false
		}
		confidence, _ := toConfidence(v["confidence"], 0)
		return text, confidence, true
	case string:
		if strings.TrimSpace(v) == "" {
			return "", 0, false
		}
		return v, bareStringConfidence, true
	}
	return "", 0, false
}

// {"plate": "...", "confidence": 0.8}
func decodePlateField(resp Response) (string, float64, bool) {
	return decodeTextField(resp, "plate", plateFieldConfidence)
}

// {"text": "...", "confidence": 0.7}
func decodeOCRText(resp Response) (string, float64, bool) {
	return decodeTextField(resp, "text", ocrTextConfidence)
}

func decodeTextField(resp Response, field string, fallback float64) (string, float64, bool) {
	text, ok := resp[field].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", 0, false
	}
	confidence, _ := toConfidence(resp["confidence"], fallback)
	return text, confidence, true
}

// toConfidence reads a number or numeric string. Values in [2,100] are percentages
// and are scaled to [0,1].
func toConfidence(v interface{}, fallback float64) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return fallback, false
		}
		f = parsed
	default:
		return fallback, false
	}

	if f > 1 {
		// Percent scores start at 2; anything in (1,2) is an out-of-range ratio.
		if f < minPercentConfidence || f > 100 {
			return fallback, false
		}
		f /= 100
	}
	if f < 0 {
		return fallback, false
	}
	return f, true
}
