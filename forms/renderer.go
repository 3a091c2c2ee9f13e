package forms

import (
	"bytes"
	"fmt"

	"github.com/signintech/gopdf"

	"github.com/worameth/clinicdesk/records"
)

// Renderer produces the intake-form packet attached to the distribute
// email.
type Renderer interface {
	IntakeForm(patient *records.Patient, appt *records.Appointment) ([]byte, error)
}

// dejaVuPaths are the usual font locations across Debian and Alpine
// images.
var dejaVuPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
}

// PDFRenderer renders the new-patient intake form with gopdf.
type PDFRenderer struct {
	fontPaths []string
}

var _ Renderer = (*PDFRenderer)(nil)

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{fontPaths: dejaVuPaths}
}

func (r *PDFRenderer) IntakeForm(patient *records.Patient, appt *records.Appointment) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	loaded := false
	for _, path := range r.fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			loaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !loaded {
		return nil, fmt.Errorf("forms: load font (is ttf-dejavu installed?): %w", fontErr)
	}

	if err := pdf.SetFont("DejaVu", "", 20); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "New Patient Intake Form")
	pdf.Br(30)

	if err := pdf.SetFont("DejaVu", "", 12); err != nil {
		return nil, err
	}
	for _, line := range []string{
		fmt.Sprintf("Patient: %s", patient.Name),
		fmt.Sprintf("Date of birth: %s", patient.DOB),
		fmt.Sprintf("Email: %s", patient.Email),
		fmt.Sprintf("Phone: %s", patient.Phone),
		fmt.Sprintf("Appointment: %s on %s at %s", appt.Doctor, appt.Date, appt.Start),
		fmt.Sprintf("Insurance carrier: %s", orBlank(patient.InsuranceCarrier)),
		fmt.Sprintf("Member ID: %s", orBlank(patient.MemberID)),
		fmt.Sprintf("Group number: %s", orBlank(patient.GroupNumber)),
	} {
		pdf.Cell(nil, line)
		pdf.Br(15)
	}
	pdf.Br(10)

	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Medical history")
	pdf.Br(15)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	for _, q := range []string{
		"Current medications:",
		"Known allergies:",
		"Previous surgeries or hospitalizations:",
		"Family history of chronic conditions:",
		"Reason for today's visit:",
	} {
		lines, _ := pdf.SplitText(q, 500)
		for _, l := range lines {
			pdf.Cell(nil, l)
			pdf.Br(12)
		}
		pdf.Br(18)
	}

	pdf.SetY(780)
	if err := pdf.SetFont("DejaVu", "", 9); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Please complete this form and bring it to your appointment.")

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("forms: write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func orBlank(s string) string {
	if s == "" {
		return "____________________"
	}
	return s
}
