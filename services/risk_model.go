package services

import (
	"encoding/csv"
	"encoding/gob"
	"errors"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"

	"credit-underwriting-api/models"
	"credit-underwriting-api/utils"
)

var (
	// ErrInsufficientTrainingData is returned when the combined corpus is too
	// small to fit a model; training is a no-op in that case.
	ErrInsufficientTrainingData = errors.New("insufficient training data: need at least 5 rows")

	// ErrModelUnavailable is returned when prediction is requested and no
	// trained artifact exists or can be produced.
	ErrModelUnavailable = errors.New("model unavailable: no trained artifact")
)

const (
	modelSeed       = 42
	forestSize      = 100
	testSetFraction = 0.2
	minTrainingRows = 5
)

// Threshold calibration sweep bounds, inclusive.
const (
	thresholdSweepLow  = 0.30
	thresholdSweepHigh = 0.70
	thresholdSweepStep = 0.01
)

// Feature order is part of the trained artifact's contract; numeric features
// come first in the encoded vector, then the one-hot categorical blocks.
var (
	categoricalFeatures = []string{"gender", "married", "dependents", "education", "self_employed", "property_area"}
	numericalFeatures   = []string{
		"monthly_income", "coapplicant_income", "loan_amount", "loan_amount_term",
		"credit_history", "average_balance", "bounced_checks_count", "missed_recent_emis",
	}
)

// trainingRow is one fully-imputed example: six categorical values in
// categoricalFeatures order, eight numeric values in numericalFeatures order,
// and the historical approval label.
type trainingRow struct {
	Categorical [6]string
	Numerical   [8]float64
	Approved    int
}

// rawRow carries per-field presence so imputation can distinguish a genuine
// zero from a missing value.
type rawRow struct {
	Gender, Married, Dependents, Education, SelfEmployed, PropertyArea *string
	MonthlyIncome, CoapplicantIncome, LoanAmount                       *float64
	LoanAmountTerm, CreditHistory                                      *float64
	AverageBalance, BouncedChecksCount, MissedRecentEMIs               float64
	Approved                                                           int
}

// FeatureSpec captures the training-time statistics applied at inference:
// standardization moments for numerics and captured category sets for the
// one-hot blocks. Unknown categories at inference encode to all zeros.
type FeatureSpec struct {
	NumMeans      []float64
	NumStds       []float64
	CatCategories [][]string
}

// RiskModelArtifact couples a trained forest with its calibrated decision
// threshold and feature spec. Created whole by a training run, persisted as
// one gob blob and replaced atomically; never partially updated.
type RiskModelArtifact struct {
	Forest    *Forest
	Threshold float64
	Spec      FeatureSpec
}

var (
	modelMu      sync.RWMutex
	currentModel *RiskModelArtifact
)

func loadedModel() *RiskModelArtifact {
	modelMu.RLock()
	defer modelMu.RUnlock()
	return currentModel
}

func setModel(artifact *RiskModelArtifact) {
	modelMu.Lock()
	currentModel = artifact
	modelMu.Unlock()
}

// ModelPath returns where the trained artifact is persisted.
func ModelPath() string {
	if p := os.Getenv("MODEL_PATH"); p != "" {
		return p
	}
	return filepath.Join("models_trained", "credit_model.gob")
}

// TrainingDataPath returns the baseline corpus CSV location.
func TrainingDataPath() string {
	if p := os.Getenv("TRAINING_DATA_PATH"); p != "" {
		return p
	}
	return filepath.Join("ml", "baseline_applications.csv")
}

// TrainAndSaveModel performs a full retrain: baseline corpus plus all decided
// applications, imputation, forest fit, threshold calibration, atomic persist.
// Idempotent; a fixed seed makes repeated runs on the same data identical.
func TrainAndSaveModel(db *gorm.DB) error {
	log.Println("--- Starting risk model training ---")

	raw, err := loadBaselineRows(TrainingDataPath())
	if err != nil {
		log.Printf("Could not load baseline training data: %v", err)
		return err
	}

	decided, err := loadDecidedApplications(db)
	if err != nil {
		log.Printf("Could not load decided applications: %v", err)
		return err
	}
	raw = append(raw, decided...)

	rows := imputeRows(raw)
	if len(rows) < minTrainingRows {
		return ErrInsufficientTrainingData
	}

	spec := fitFeatureSpec(rows)
	features := make([][]float64, len(rows))
	labels := make([]int, len(rows))
	for i, row := range rows {
		features[i] = spec.encode(row.Categorical, row.Numerical)
		labels[i] = row.Approved
	}
	weights := classWeights(labels)

	rng := rand.New(rand.NewSource(modelSeed))
	trainIdx, testIdx := stratifiedSplit(labels, testSetFraction, rng)

	trainFeatures := make([][]float64, len(trainIdx))
	trainLabels := make([]int, len(trainIdx))
	trainWeights := make([]float64, len(trainIdx))
	for i, idx := range trainIdx {
		trainFeatures[i] = features[idx]
		trainLabels[i] = labels[idx]
		trainWeights[i] = weights[idx]
	}

	forest := TrainForest(trainFeatures, trainLabels, trainWeights, forestSize, rng)

	threshold := calibrateThreshold(forest, features, labels, testIdx)

	artifact := &RiskModelArtifact{Forest: forest, Threshold: threshold, Spec: spec}
	if err := saveModelArtifact(artifact, ModelPath()); err != nil {
		return err
	}
	setModel(artifact)

	log.Printf("--- Risk model training complete. Calibrated threshold: %.2f ---", threshold)
	return nil
}

// calibrateThreshold sweeps candidate cutoffs over the held-out set and keeps
// the one maximizing F1. A probability cutoff chosen this way beats a fixed
// 0.5 on the imbalanced approval corpus.
func calibrateThreshold(forest *Forest, features [][]float64, labels []int, testIdx []int) float64 {
	probs := make([]float64, len(testIdx))
	truth := make([]int, len(testIdx))
	for i, idx := range testIdx {
		probs[i] = forest.PredictProba(features[idx])
		truth[i] = labels[idx]
	}

	best := thresholdSweepLow
	bestF1 := -1.0
	steps := int(math.Round((thresholdSweepHigh-thresholdSweepLow)/thresholdSweepStep)) + 1
	for i := 0; i < steps; i++ {
		t := thresholdSweepLow + float64(i)*thresholdSweepStep
		f1 := f1Score(truth, probs, t)
		if f1 > bestF1 {
			bestF1 = f1
			best = t
		}
	}
	return best
}

func f1Score(truth []int, probs []float64, threshold float64) float64 {
	var tp, fp, fn float64
	for i := range truth {
		predicted := probs[i] > threshold
		switch {
		case predicted && truth[i] == 1:
			tp++
		case predicted && truth[i] == 0:
			fp++
		case !predicted && truth[i] == 1:
			fn++
		}
	}
	if tp == 0 {
		return 0
	}
	precision := tp / (tp + fp)
	recall := tp / (tp + fn)
	return 2 * precision * recall / (precision + recall)
}

// stratifiedSplit shuffles each class independently and holds out the given
// fraction of both, so the test set keeps the class balance.
func stratifiedSplit(labels []int, fraction float64, rng *rand.Rand) (trainIdx, testIdx []int) {
	byClass := map[int][]int{}
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}

	classes := make([]int, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	for _, class := range classes {
		indices := byClass[class]
		rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
		cut := int(math.Round(float64(len(indices)) * fraction))
		testIdx = append(testIdx, indices[:cut]...)
		trainIdx = append(trainIdx, indices[cut:]...)
	}
	sort.Ints(trainIdx)
	sort.Ints(testIdx)
	return trainIdx, testIdx
}

// classWeights assigns inverse-frequency sample weights so the minority class
// is not drowned out (sklearn's class_weight="balanced").
func classWeights(labels []int) []float64 {
	counts := map[int]float64{}
	for _, label := range labels {
		counts[label]++
	}
	n := float64(len(labels))
	k := float64(len(counts))
	weights := make([]float64, len(labels))
	for i, label := range labels {
		weights[i] = n / (k * counts[label])
	}
	return weights
}

func fitFeatureSpec(rows []trainingRow) FeatureSpec {
	spec := FeatureSpec{
		NumMeans:      make([]float64, len(numericalFeatures)),
		NumStds:       make([]float64, len(numericalFeatures)),
		CatCategories: make([][]string, len(categoricalFeatures)),
	}

	n := float64(len(rows))
	for j := range numericalFeatures {
		sum := 0.0
		for _, row := range rows {
			sum += row.Numerical[j]
		}
		mean := sum / n
		variance := 0.0
		for _, row := range rows {
			d := row.Numerical[j] - mean
			variance += d * d
		}
		spec.NumMeans[j] = mean
		spec.NumStds[j] = math.Sqrt(variance / n)
	}

	for j := range categoricalFeatures {
		seen := map[string]struct{}{}
		for _, row := range rows {
			seen[row.Categorical[j]] = struct{}{}
		}
		categories := make([]string, 0, len(seen))
		for c := range seen {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		spec.CatCategories[j] = categories
	}
	return spec
}

func (s FeatureSpec) encode(categorical [6]string, numerical [8]float64) []float64 {
	vector := make([]float64, 0, len(numerical)+len(s.CatCategories)*2)
	for j, v := range numerical {
		std := s.NumStds[j]
		if std == 0 {
			std = 1
		}
		vector = append(vector, (v-s.NumMeans[j])/std)
	}
	for j, categories := range s.CatCategories {
		for _, category := range categories {
			if categorical[j] == category {
				vector = append(vector, 1)
			} else {
				vector = append(vector, 0)
			}
		}
	}
	return vector
}

// Score runs the forest over one application. monthlyIncome is passed
// separately so the verified stage can substitute the OCR-extracted salary.
// Loan amounts above 1000 are divided by 1000 first: the baseline corpus
// records loans in thousands, so the trained model's numeric scale depends on
// this exact divisor.
func (a *RiskModelArtifact) Score(app *models.CreditApplication, monthlyIncome float64) float64 {
	loanAmount := app.LoanAmount
	if loanAmount > 1000 {
		loanAmount = loanAmount / 1000
	}

	numerical := [8]float64{
		monthlyIncome,
		app.CoapplicantIncome,
		loanAmount,
		floatFromIntPtr(app.LoanAmountTerm),
		floatFromIntPtrDefault(app.CreditHistory, 1),
		floatFromPtr(app.AverageBalance),
		floatFromIntPtr(app.BouncedChecksCount),
		boolToFloat(app.MissedRecentEMIs),
	}
	categorical := [6]string{
		stringFromPtr(app.Gender),
		stringFromPtr(app.Married),
		stringFromPtr(app.Dependents),
		stringFromPtr(app.Education),
		stringFromPtr(app.SelfEmployed),
		stringFromPtr(app.PropertyArea),
	}

	return a.Forest.PredictProba(a.Spec.encode(categorical, numerical))
}

// LoadModelArtifact restores the persisted artifact into memory.
func LoadModelArtifact() error {
	f, err := os.Open(ModelPath())
	if err != nil {
		return err
	}
	defer f.Close()

	var artifact RiskModelArtifact
	if err := gob.NewDecoder(f).Decode(&artifact); err != nil {
		return err
	}
	setModel(&artifact)
	return nil
}

// saveModelArtifact persists to a temp file in the target directory and
// renames it into place, so readers only ever observe a complete artifact.
func saveModelArtifact(artifact *RiskModelArtifact, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "credit_model-*.gob.tmp")
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(tmp).Encode(artifact); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// loadBaselineRows reads the label-balanced reference corpus. The CSV keeps
// the public loan-dataset header; statement metrics are synthesized with
// neutral values since the corpus predates statement analysis.
func loadBaselineRows(csvPath string) ([]rawRow, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	get := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []rawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row := rawRow{
			Gender:             optionalString(get(record, "Gender")),
			Married:            optionalString(get(record, "Married")),
			Dependents:         optionalString(get(record, "Dependents")),
			Education:          optionalString(get(record, "Education")),
			SelfEmployed:       optionalString(get(record, "Self_Employed")),
			PropertyArea:       optionalString(get(record, "Property_Area")),
			MonthlyIncome:      optionalFloat(get(record, "ApplicantIncome")),
			CoapplicantIncome:  optionalFloat(get(record, "CoapplicantIncome")),
			LoanAmount:         optionalFloat(get(record, "LoanAmount")),
			LoanAmountTerm:     optionalFloat(get(record, "Loan_Amount_Term")),
			CreditHistory:      optionalFloat(get(record, "Credit_History")),
			AverageBalance:     50000,
			BouncedChecksCount: 0,
			MissedRecentEMIs:   0,
		}
		if get(record, "Loan_Status") == "Y" {
			row.Approved = 1
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// loadDecidedApplications pulls every application with a terminal status; the
// human-confirmed final decision becomes the training label.
func loadDecidedApplications(db *gorm.DB) ([]rawRow, error) {
	var apps []models.CreditApplication
	if err := db.Where("status IN ?", []string{models.StatusApproved, models.StatusRejected}).Find(&apps).Error; err != nil {
		return nil, err
	}

	rows := make([]rawRow, 0, len(apps))
	for _, app := range apps {
		income := app.MonthlyIncome
		row := rawRow{
			Gender:             app.Gender,
			Married:            app.Married,
			Dependents:         app.Dependents,
			Education:          app.Education,
			SelfEmployed:       app.SelfEmployed,
			PropertyArea:       app.PropertyArea,
			MonthlyIncome:      &income,
			CoapplicantIncome:  &app.CoapplicantIncome,
			LoanAmount:         &app.LoanAmount,
			LoanAmountTerm:     intPtrToFloatPtr(app.LoanAmountTerm),
			CreditHistory:      intPtrToFloatPtr(app.CreditHistory),
			AverageBalance:     floatFromPtr(app.AverageBalance),
			BouncedChecksCount: floatFromIntPtr(app.BouncedChecksCount),
			MissedRecentEMIs:   boolToFloat(app.MissedRecentEMIs),
		}
		if app.FinalDecision != nil && *app.FinalDecision == "Approved" {
			row.Approved = 1
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// imputeRows fills missing values the way the corpus was originally prepared:
// mode for the four sparse categoricals, 1 for credit history, the column mean
// for loan term, and drops rows without a loan amount or income.
func imputeRows(raw []rawRow) []trainingRow {
	modeGender := categoricalMode(raw, func(r rawRow) *string { return r.Gender })
	modeMarried := categoricalMode(raw, func(r rawRow) *string { return r.Married })
	modeDependents := categoricalMode(raw, func(r rawRow) *string { return r.Dependents })
	modeSelfEmployed := categoricalMode(raw, func(r rawRow) *string { return r.SelfEmployed })

	termSum, termCount := 0.0, 0
	for _, r := range raw {
		if r.LoanAmountTerm != nil {
			termSum += *r.LoanAmountTerm
			termCount++
		}
	}
	meanTerm := 360.0
	if termCount > 0 {
		meanTerm = termSum / float64(termCount)
	}

	var rows []trainingRow
	for _, r := range raw {
		if r.LoanAmount == nil || r.MonthlyIncome == nil {
			continue
		}
		row := trainingRow{
			Categorical: [6]string{
				stringOr(r.Gender, modeGender),
				stringOr(r.Married, modeMarried),
				stringOr(r.Dependents, modeDependents),
				stringOr(r.Education, ""),
				stringOr(r.SelfEmployed, modeSelfEmployed),
				stringOr(r.PropertyArea, ""),
			},
			Numerical: [8]float64{
				*r.MonthlyIncome,
				floatOr(r.CoapplicantIncome, 0),
				*r.LoanAmount,
				floatOr(r.LoanAmountTerm, meanTerm),
				floatOr(r.CreditHistory, 1),
				r.AverageBalance,
				r.BouncedChecksCount,
				r.MissedRecentEMIs,
			},
			Approved: r.Approved,
		}
		rows = append(rows, row)
	}
	return rows
}

func categoricalMode(raw []rawRow, pick func(rawRow) *string) string {
	counts := map[string]int{}
	for _, r := range raw {
		if v := pick(r); v != nil {
			counts[*v]++
		}
	}
	mode, best := "", 0
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > best {
			mode, best = k, counts[k]
		}
	}
	return mode
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalFloat(s string) *float64 {
	v, ok := utils.ParseAmount(s)
	if !ok {
		return nil
	}
	return &v
}

func stringOr(p *string, fallback string) string {
	if p != nil {
		return *p
	}
	return fallback
}

func floatOr(p *float64, fallback float64) float64 {
	if p != nil {
		return *p
	}
	return fallback
}

func stringFromPtr(p *string) string {
	if p != nil {
		return *p
	}
	return ""
}

func floatFromPtr(p *float64) float64 {
	if p != nil {
		return *p
	}
	return 0
}

func floatFromIntPtr(p *int) float64 {
	if p != nil {
		return float64(*p)
	}
	return 0
}

func floatFromIntPtrDefault(p *int, fallback float64) float64 {
	if p != nil {
		return float64(*p)
	}
	return fallback
}

func intPtrToFloatPtr(p *int) *float64 {
	if p == nil {
		return nil
	}
	v := float64(*p)
	return &v
}

func boolToFloat(p *bool) float64 {
	if p != nil && *p {
		return 1
	}
	return 0
}
