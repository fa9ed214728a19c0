package svm

import "fmt"

const (
	CSvc = 0

	KernelTypeLinear  = 0
	KernelTypePoly    = 1
	KernelTypeRbf     = 2
	KernelTypeSigmoid = 3
)

type Parameter struct {
	SvmType    int     `json:"svm_type"`
	KernelType int     `json:"kernel_type"`
	Degree     int     `json:"degree"`
	Gamma      float64 `json:"gamma"`
	Coef0      float64 `json:"coef_0"`
	Eps        float64 `json:"eps"`
	C          float64 `json:"c"`
	// Probability is the number of internal cross-validation folds used to fit the Platt
	// sigmoids; 0 disables probability estimates.
	Probability int   `json:"probability"`
	Seed        int64 `json:"seed"`
}

// DefaultParameter mirrors libsvm's defaults for C-SVC with probability estimates.
func DefaultParameter() Parameter {
	return Parameter{
		SvmType:     CSvc,
		KernelType:  KernelTypeRbf,
		Degree:      3,
		Coef0:       0,
		Eps:         1e-3,
		C:           1,
		Probability: 5,
	}
}

func (p Parameter) Validate() error {
	if p.SvmType != CSvc {
		return fmt.Errorf("unsupported svm type %d", p.SvmType)
	}
	switch p.KernelType {
	case KernelTypeLinear, KernelTypePoly, KernelTypeRbf, KernelTypeSigmoid:
	default:
		return fmt.Errorf("unknown kernel type %d", p.KernelType)
	}
	if p.C <= 0 {
		return fmt.Errorf("C must be positive, got %v", p.C)
	}
	if p.Eps <= 0 {
		return fmt.Errorf("eps must be positive, got %v", p.Eps)
	}
	if p.Gamma < 0 {
		return fmt.Errorf("gamma must not be negative, got %v", p.Gamma)
	}
	if p.KernelType == KernelTypePoly && p.Degree < 0 {
		return fmt.Errorf("degree must not be negative, got %d", p.Degree)
	}
	if p.Probability == 1 || p.Probability < 0 {
		return fmt.Errorf("probability folds must be 0 or at least 2, got %d", p.Probability)
	}
	return nil
}

// KernelTypeFromName parses the kernel names used in configuration files.
func KernelTypeFromName(name string) (int, error) {
	switch name {
	case "linear":
		return KernelTypeLinear, nil
	case "poly":
		return KernelTypePoly, nil
	case "rbf":
		return KernelTypeRbf, nil
	case "sigmoid":
		return KernelTypeSigmoid, nil
	}
	return 0, fmt.Errorf("unknown kernel %q", name)
}

// Model is a trained one-vs-one C-SVC in libsvm layout. Support vectors are grouped by class;
// SvCoef[j-1] holds the coefficients of class i vectors for the (i, j) classifier and
// SvCoef[i] those of class j vectors.
type Model struct {
	Param   Parameter   `json:"param"`
	NrClass int         `json:"nr_class"`
	L       int         `json:"l"`
	SV      [][]float64 `json:"sv"`
	SvCoef  [][]float64 `json:"sv_coef"`
	Rho     []float64   `json:"rho"`
	ProbA   []float64   `json:"prob_a"`
	ProbB   []float64   `json:"prob_b"`
	Label   []int       `json:"label"`
	NSV     []int       `json:"nsv"`
}

func (m *Model) HasProbability() bool {
	return len(m.ProbA) > 0 && len(m.ProbB) > 0
}
