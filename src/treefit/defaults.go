package treefit

const (
	// Prior widths for freshly initialised parameters.
	posPriorSigma = 10.0 // cm
	momPriorSigma = 10.0 // GeV

	// Upper bound on the prior flight length, in cm. Covers K_S0 -> pi0 pi0.
	maxDecayLength = 20.0

	// Prior on the decay-length parameter when the species has no known
	// lifetime, in cm/GeV.
	tauPriorUnknown = 999.0

	// Between passes the covariance is reduced to its diagonal and
	// inflated by this factor.
	covResetScale = 1000.0

	// Chi-square change below which re-linearising a single constraint
	// stops.
	constraintChi2Tol = 1e-3

	// Consecutive chi-square increases tolerated before giving up.
	maxDiverging = 3
)
