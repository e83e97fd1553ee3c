// Package units is the canonical column registry and per-format source
// column lookup tables for the supported instrument formats.
package units

// Canonical column names.
const (
	TimeS          = "time_s"
	PotentialV     = "potential_V"
	CurrentA       = "current_A"
	ZRealOhm       = "z_real_Ohm"
	ZImagOhm       = "z_imag_Ohm"
	ZMagOhm        = "z_mag_Ohm"
	ZPhaseDeg      = "z_phase_deg"
	FrequencyHz    = "frequency_Hz"
	Cycle          = "cycle"
	PotentialIRV   = "potential_ir_corrected_V"
	CurrentDensA   = "current_density_A_cm2"
	CurrentPerMass = "current_A_g"
)

// Technique is a closed-set EC experiment abbreviation.
type Technique string

const (
	TechCV   Technique = "CV"
	TechLSV  Technique = "LSV"
	TechCA   Technique = "CA"
	TechCP   Technique = "CP"
	TechOCV  Technique = "OCV"
	TechOCP  Technique = "OCP"
	TechPEIS Technique = "PEIS"
	TechGEIS Technique = "GEIS"
	TechEIS  Technique = "EIS"
	TechCC   Technique = "CC"
	TechZIR  Technique = "ZIR"
)

// KnownTechniques is the closed set used by filename heuristics.
var KnownTechniques = []Technique{
	TechCA, TechCC, TechCP, TechCV, TechLSV, TechOCV, TechOCP, TechPEIS, TechGEIS, TechEIS, TechZIR,
}

func IsKnownTechnique(s string) bool {
	for _, t := range KnownTechniques {
		if string(t) == s {
			return true
		}
	}
	return false
}

// SourceColumn describes how one source-format column maps onto a
// canonical column, including the multiplicative unit conversion factor
// applied when the source unit differs from the canonical target unit.
type SourceColumn struct {
	Canonical string
	Factor    float64 // multiply raw value by this to reach the canonical SI unit
}

// BioLogicColumnMap is the source_column -> canonical mapping for
// BioLogic .mpr files. <I>/mA carries a x1e-3 factor (mA -> A).
var BioLogicColumnMap = map[string]SourceColumn{
	"time/s":       {TimeS, 1},
	"Ewe/V":        {PotentialV, 1},
	"<I>/mA":       {CurrentA, 1e-3},
	"Re(Z)/Ohm":    {ZRealOhm, 1},
	"-Im(Z)/Ohm":   {ZImagOhm, 1},
	"|Z|/Ohm":      {ZMagOhm, 1},
	"Phase(Z)/deg": {ZPhaseDeg, 1},
	"freq/Hz":      {FrequencyHz, 1},
	"cycle number": {Cycle, 1},
}

// GamryColumnMap is the source_column -> canonical mapping for Gamry .DTA
// files. All factors are 1 (no conversion): Gamry reports SI units
// directly.
var GamryColumnMap = map[string]SourceColumn{
	"T":     {TimeS, 1},
	"Time":  {TimeS, 1},
	"Vf":    {PotentialV, 1},
	"V":     {PotentialV, 1},
	"E":     {PotentialV, 1},
	"Im":    {CurrentA, 1},
	"I":     {CurrentA, 1},
	"Zreal": {ZRealOhm, 1},
	"Zimag": {ZImagOhm, 1},
	"Zmod":  {ZMagOhm, 1},
	"Zphz":  {ZPhaseDeg, 1},
	"Freq":  {FrequencyHz, 1},
	"Cycle": {Cycle, 1},
}

// ReferenceElectrodeOffsets are offsets in volts vs. SHE at 25 C.
var ReferenceElectrodeOffsets = map[string]float64{
	"SHE":                   0.000,
	"Ag/AgCl(sat. KCl)":     0.197,
	"Ag/AgCl(3M KCl)":       0.210,
	"Ag/AgCl(3M NaCl)":      0.209,
	"SCE":                   0.244,
	"Hg/HgO(1M NaOH)":       0.140,
	"Hg/HgO(1M KOH)":        0.098,
	"Hg/Hg2SO4(sat. K2SO4)": 0.654,
}
