package qc

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"dtiqc/internal/models"
	"dtiqc/pkg/config"
	"dtiqc/pkg/nifti"
	"dtiqc/pkg/overlap"
)

// Checker runs the per-step checks for one (subject, session) pair.
// It is single-threaded; the template volume is cached after the first
// registration check since every session scores against the same file.
type Checker struct {
	cfg      *config.Config
	log      *logrus.Entry
	template *nifti.Volume
}

// NewChecker returns a checker bound to the given configuration.
func NewChecker(cfg *config.Config) *Checker {
	return &Checker{
		cfg: cfg,
		log: logrus.WithField("component", "qc"),
	}
}

// expectedArtifact names one file the upstream pipeline should have
// produced, with glob patterns tried in order (stricter first).
type expectedArtifact struct {
	check    string
	root     func(*config.Config) string
	patterns []string
}

// The artifact set mirrors the upstream pipeline outputs: registered
// volumes and transforms from FLIRT, the BET QC image, and the DIPY
// tensor maps.
var expectedArtifacts = []expectedArtifact{
	{"mni_rigid_volume", (*config.Config).RegMNIRoot, []string{"*b0_reg_rigid.nii.gz", "*b0*reg*rigid.nii.gz"}},
	{"mni_affine_volume", (*config.Config).RegMNIRoot, []string{"*b0_reg_affine.nii.gz", "*b0*reg*affine.nii.gz"}},
	{"rigid_transform", (*config.Config).RegMNIRoot, []string{"*rigid*.mat"}},
	{"affine_transform", (*config.Config).RegMNIRoot, []string{"*affine*.mat"}},
	{"skull_strip_qc_image", (*config.Config).SkullStripRoot, []string{"*desc-qc.png"}},
	{"fa_map", (*config.Config).DtifitRoot, []string{"dipy_fa.nii.gz"}},
	{"md_map", (*config.Config).DtifitRoot, []string{"dipy_md.nii.gz"}},
}

// StepDir resolves a step root to the subject's (optionally
// session-scoped) directory.
func StepDir(root, subject, session string) string {
	if session == "" {
		return filepath.Join(root, subject)
	}
	return filepath.Join(root, subject, session)
}

// findFile returns the first file matching any of the patterns inside
// dir, trying patterns in order. Matches within a pattern are taken in
// sorted order so repeated runs see the same file.
func findFile(dir string, patterns []string) string {
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, p))
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		return matches[0]
	}
	return ""
}

// CheckFiles verifies that every expected artifact exists for the
// subject/session and returns one record per artifact. Missing files
// yield MISSING rows with no metric.
func (c *Checker) CheckFiles(subject, session string) []models.Record {
	log := c.log.WithFields(logrus.Fields{"subject": subject, "session": session})

	records := make([]models.Record, 0, len(expectedArtifacts))
	for _, art := range expectedArtifacts {
		dir := StepDir(art.root(c.cfg), subject, session)
		rec := models.Record{
			Subject: subject,
			Session: session,
			Check:   art.check,
		}
		if found := findFile(dir, art.patterns); found != "" {
			rec.Status = models.StatusPass
			rec.Path = found
			log.WithFields(logrus.Fields{"check": art.check, "path": found}).Info("artifact found")
		} else {
			rec.Status = models.StatusMissing
			rec.Path = filepath.Join(dir, art.patterns[0])
			log.WithFields(logrus.Fields{"check": art.check, "path": rec.Path}).Warn("artifact missing")
		}
		records = append(records, rec)
	}
	return records
}

// registrationTargets are the two FLIRT stages scored against the MNI
// template.
var registrationTargets = []struct {
	tag      string
	patterns []string
}{
	{"rigid", []string{"*b0_reg_rigid.nii.gz", "*b0*reg*rigid.nii.gz"}},
	{"affine", []string{"*b0_reg_affine.nii.gz", "*b0*reg*affine.nii.gz"}},
}

// CheckMNI scores the rigid and affine MNI-registered b0 volumes
// against the template by Dice overlap and classifies each against the
// configured thresholds.
func (c *Checker) CheckMNI(subject, session string) []models.Record {
	log := c.log.WithFields(logrus.Fields{"subject": subject, "session": session})
	regDir := StepDir(c.cfg.RegMNIRoot(), subject, session)

	records := make([]models.Record, 0, len(registrationTargets))
	for _, target := range registrationTargets {
		check := "mni_" + target.tag + "_dice"
		warped := findFile(regDir, target.patterns)
		if warped == "" {
			records = append(records, c.missing(subject, session, check,
				filepath.Join(regDir, target.patterns[0])))
			continue
		}

		template, err := c.loadTemplate()
		if err != nil {
			log.WithFields(logrus.Fields{"check": check, "path": c.cfg.Paths.TemplatePath}).
				WithError(err).Warn("template unavailable")
			records = append(records, c.missing(subject, session, check, c.cfg.Paths.TemplatePath))
			continue
		}

		records = append(records, c.scoreRegistration(subject, session, check, template, warped))
	}
	return records
}

// CheckWithin scores each extra scan's b0 against scan 0 within the
// session. Single-scan configurations have nothing to register, so the
// check is SKIPPED rather than failed.
func (c *Checker) CheckWithin(subject, session string) []models.Record {
	log := c.log.WithFields(logrus.Fields{"subject": subject, "session": session})

	if c.cfg.Session.ScansPerSession <= 1 {
		log.WithField("check", "within_session_registration").Info("skipped: single scan per session")
		return []models.Record{{
			Subject: subject,
			Session: session,
			Check:   "within_session_registration",
			Status:  models.StatusSkipped,
		}}
	}

	refPath := findFile(StepDir(c.cfg.SkullStripRoot(), subject, session),
		[]string{"mask_bet_scan0.nii.gz", "*mask*scan0*.nii.gz"})

	var records []models.Record
	for scan := 1; scan < c.cfg.Session.ScansPerSession; scan++ {
		check := fmt.Sprintf("b0_scan%d_to_scan0_dice", scan)
		regDir := StepDir(c.cfg.RegWithinRoot(), subject, session)
		warped := findFile(regDir, []string{fmt.Sprintf("*b0_reg_%d_to_0.nii.gz", scan)})

		switch {
		case refPath == "":
			records = append(records, c.missing(subject, session, check,
				filepath.Join(StepDir(c.cfg.SkullStripRoot(), subject, session), "mask_bet_scan0.nii.gz")))
		case warped == "":
			records = append(records, c.missing(subject, session, check,
				filepath.Join(regDir, fmt.Sprintf("*b0_reg_%d_to_0.nii.gz", scan))))
		default:
			ref, err := nifti.ReadFile(refPath)
			if err != nil {
				records = append(records, c.unreadable(subject, session, check, refPath, err))
				continue
			}
			records = append(records, c.scoreRegistration(subject, session, check, ref, warped))
		}
	}
	return records
}

// scoreRegistration loads the warped volume, binarizes both volumes and
// records the classified Dice overlap against the fixed reference.
func (c *Checker) scoreRegistration(subject, session, check string, fixed *nifti.Volume, warpedPath string) models.Record {
	log := c.log.WithFields(logrus.Fields{
		"subject": subject, "session": session, "check": check, "path": warpedPath,
	})

	warped, err := nifti.ReadFile(warpedPath)
	if err != nil {
		return c.unreadable(subject, session, check, warpedPath, err)
	}

	rec := models.Record{
		Subject:   subject,
		Session:   session,
		Check:     check,
		Threshold: c.cfg.Thresholds.DicePass,
		Path:      warpedPath,
	}

	if !fixed.SameShape(warped) {
		log.WithFields(logrus.Fields{
			"fixedShape":  fixed.Shape(),
			"warpedShape": warped.Shape(),
		}).Error("grid shape mismatch, registration unusable")
		rec.Status = models.StatusFail
		return rec
	}

	frac := c.cfg.Thresholds.MaskFraction
	dice, err := overlap.Dice(overlap.Binarize(fixed.Data, frac), overlap.Binarize(warped.Data, frac))
	if err != nil {
		// Same shape but different frame counts.
		log.WithError(err).Error("overlap scoring failed")
		rec.Status = models.StatusFail
		return rec
	}

	if math.IsNaN(dice) {
		log.Warn("empty overlap masks, Dice undefined")
		rec.Status = models.StatusWarning
		return rec
	}

	rec.Metric = models.Float(dice)
	rec.Status = overlap.Classify(dice, c.cfg.Thresholds.DicePass, c.cfg.Thresholds.DiceWarn)
	log.WithFields(logrus.Fields{"dice": dice, "status": rec.Status}).Info("registration scored")
	return rec
}

func (c *Checker) missing(subject, session, check, path string) models.Record {
	c.log.WithFields(logrus.Fields{
		"subject": subject, "session": session, "check": check, "path": path,
	}).Warn("input missing")
	return models.Record{
		Subject: subject, Session: session, Check: check,
		Status: models.StatusMissing, Path: path,
		Threshold: c.cfg.Thresholds.DicePass,
	}
}

func (c *Checker) unreadable(subject, session, check, path string, err error) models.Record {
	c.log.WithFields(logrus.Fields{
		"subject": subject, "session": session, "check": check, "path": path,
	}).WithError(err).Error("artifact unreadable")
	return models.Record{
		Subject: subject, Session: session, Check: check,
		Status: models.StatusFail, Path: path,
		Threshold: c.cfg.Thresholds.DicePass,
	}
}

func (c *Checker) loadTemplate() (*nifti.Volume, error) {
	if c.template != nil {
		return c.template, nil
	}
	if c.cfg.Paths.TemplatePath == "" {
		return nil, fmt.Errorf("no template path configured")
	}
	v, err := nifti.ReadFile(c.cfg.Paths.TemplatePath)
	if err != nil {
		return nil, err
	}
	c.template = v
	return v, nil
}
