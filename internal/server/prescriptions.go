package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/rxverify/internal/common"
	"github.com/joseph-ayodele/rxverify/internal/entity"
	"github.com/joseph-ayodele/rxverify/internal/utils"
)

const uploadField = "image"

var errNoImage = echo.NewHTTPError(http.StatusBadRequest, "No image uploaded")

// readUpload returns the bytes of the multipart "image" part. A missing or
// empty part is rejected before the pipeline runs.
func readUpload(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		// the body limit surfaces as a 413 while the form is parsed
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, errNoImage
	}
	if fh.Size == 0 {
		return nil, errNoImage
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errNoImage
	}
	return data, nil
}

func (s *HTTPServer) verify(c echo.Context) error {
	image, err := readUpload(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.pipeline.Verify(c.Request().Context(), image))
}

func (s *HTTPServer) register(c echo.Context) error {
	image, err := readUpload(c)
	if err != nil {
		return err
	}
	res, err := s.pipeline.Register(c.Request().Context(), image)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) extract(c echo.Context) error {
	image, err := readUpload(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.pipeline.Extract(c.Request().Context(), image))
}

func (s *HTTPServer) lookup(c echo.Context) error {
	fp := strings.ToLower(strings.TrimSpace(c.Param("fingerprint")))
	v := common.NewValidator().Field("fingerprint", fp, common.HexDigest)
	if err := v.Error(); err != nil {
		return err
	}
	ok, err := s.pipeline.Lookup(c.Request().Context(), fp)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lookupResponse{Fingerprint: fp, ExistsAndValid: ok})
}

type lookupResponse struct {
	Fingerprint    string `json:"fingerprint"`
	ExistsAndValid bool   `json:"exists_and_valid"`
}

// issuanceRequest is the body of POST /prescriptions.
type issuanceRequest struct {
	DoctorName   string   `json:"doctor_name"`
	PatientName  string   `json:"patient_name"`
	Date         string   `json:"date"`
	Medications  []string `json:"medications"`
	Dosage       string   `json:"dosage"`
	Instructions string   `json:"instructions"`
}

func (s *HTTPServer) createPrescription(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	if err := s.issuance.Validate(body); err != nil {
		return err
	}
	var req issuanceRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	v := common.NewValidator().
		Field("doctor_name", req.DoctorName, common.Required, common.MaxLength(200)).
		Field("patient_name", req.PatientName, common.Required, common.MaxLength(200)).
		Field("date", req.Date, common.ISODate).
		Field("medications", req.Medications, common.Required)
	for i, m := range req.Medications {
		v.Field(fmt.Sprintf("medications[%d]", i), m, common.Required, common.MaxLength(500))
	}
	if err := v.Error(); err != nil {
		return err
	}
	date, err := utils.ParseYMD(req.Date)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	meds := make([]string, len(req.Medications))
	for i, m := range req.Medications {
		meds[i] = strings.TrimSpace(m)
	}
	res, err := s.pipeline.RegisterRecord(c.Request().Context(), entity.PrescriptionRecord{
		DoctorName:       strings.TrimSpace(req.DoctorName),
		PatientName:      strings.TrimSpace(req.PatientName),
		PrescriptionDate: date,
		Medications:      meds,
		Dosage:           strings.TrimSpace(req.Dosage),
		Instructions:     strings.TrimSpace(req.Instructions),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

const issuanceSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["doctor_name", "patient_name", "date", "medications"],
  "additionalProperties": false,
  "properties": {
    "doctor_name":  {"type": "string", "minLength": 1},
    "patient_name": {"type": "string", "minLength": 1},
    "date":         {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "medications":  {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "dosage":       {"type": "string"},
    "instructions": {"type": "string"}
  }
}`

type issuanceValidator struct {
	schema *jsonschema.Schema
}

func newIssuanceValidator() (*issuanceValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("issuance.json", strings.NewReader(issuanceSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("issuance.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &issuanceValidator{schema: schema}, nil
}

// Validate checks raw JSON against the issuance schema.
func (v *issuanceValidator) Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: body is not valid JSON: %v", common.ErrInvalidInput, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
