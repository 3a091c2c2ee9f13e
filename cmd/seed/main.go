package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog/log"

	configx "github.com/worameth/clinicdesk/pkg/config"
	_ "github.com/worameth/clinicdesk/pkg/logger/autoload"
	"github.com/worameth/clinicdesk/records"
)

var (
	doctors  = []string{"Dr. Smith", "Dr. Johnson"}
	carriers = []string{"Aetna", "BlueCross", "Cigna", "UnitedHealth", "Humana"}
)

type SeedConfig struct {
	DataDir      string `envconfig:"DATA_DIR" split_words:"true" default:"./data"`
	PatientCount int    `envconfig:"PATIENT_COUNT" split_words:"true" default:"20"`
	// Business days of availability to generate, starting tomorrow.
	Days int `envconfig:"DAYS" split_words:"true" default:"14"`
}

func main() {
	log.Info().Msg("seed starting")

	cfg := configx.MustNew[SeedConfig]("")
	ctx := context.Background()

	repo, err := records.NewCSVRepository(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("open csv repository")
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedPatients(ctx, repo, cfg.PatientCount); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedAvailability(ctx, repo, cfg.Days); err != nil {
		log.Fatal().Err(err).Msg("seed availability")
	}

	log.Info().Msg("seed complete")
}

func seedPatients(ctx context.Context, repo records.Repository, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	for i := 0; i < count; i++ {
		dob := gofakeit.DateRange(
			time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2007, 12, 31, 0, 0, 0, 0, time.UTC))
		phone := gofakeit.Numerify("###-###-####")
		carrier := carriers[gofakeit.Number(0, len(carriers)-1)]

		patient := &records.Patient{
			Name:             gofakeit.Name(),
			DOB:              dob.Format("2006-01-02"),
			Email:            gofakeit.Email(),
			Phone:            phone,
			DoctorPreference: doctors[gofakeit.Number(0, len(doctors)-1)],
			Type:             records.PatientReturning,
			InsuranceCarrier: carrier,
			MemberID:         gofakeit.Numerify("M########"),
			GroupNumber:      gofakeit.Numerify("G#####"),
		}
		if err := repo.CreatePatient(ctx, patient); err != nil {
			return err
		}
	}
	return nil
}

// seedAvailability fills a Mon-Fri 09:00-17:00 grid of 30-minute slots
// for every doctor.
func seedAvailability(ctx context.Context, repo records.Repository, days int) error {
	log.Info().Int("days", days).Msg("seeding availability")

	var slots []records.AvailabilitySlot
	next := 1
	day := time.Now().UTC().AddDate(0, 0, 1)

	for added := 0; added < days; day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		added++

		date := day.Format("2006-01-02")
		for _, doctor := range doctors {
			for hour := 9; hour < 17; hour++ {
				for _, minute := range []int{0, 30} {
					slots = append(slots, records.AvailabilitySlot{
						ID:        fmt.Sprintf("%d", next),
						Doctor:    doctor,
						Date:      date,
						Start:     fmt.Sprintf("%02d:%02d", hour, minute),
						Available: true,
					})
					next++
				}
			}
		}
	}

	if err := repo.CreateSlots(ctx, slots); err != nil {
		return err
	}
	log.Info().Int("slots", len(slots)).Msg("availability seeded")
	return nil
}
