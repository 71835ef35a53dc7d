package census

// EconomicFields is the demographic field set carried onto zones by default.
var EconomicFields = []string{
	"pop_density", "sexRatio", "inst_pcnt", "Foreign_pcnt",
	"age0_19_pcnt", "age20_64_pcnt", "age65_pcnt", "DependencyRatio",
	"age_median", "m_age_median", "w_age_median", "married18_34_pcnt",
	"married45_54_pcnt", "j_isr_pcnt", "j_abr_pcnt", "aliya2002_pcnt",
	"aliya2010_pcnt", "israel_pcnt", "asia_pcnt", "africa_pcnt",
	"europe_pcnt", "america_pcnt", "MarriageAge_mdn", "m_MarriageAge_mdn",
	"w_MarriageAge_mdn", "ChldBorn_avg", "koshi5_pcnt", "koshi65_pcnt",
	"AcadmCert_pcnt", "WrkY_pcnt", "Empl_pcnt", "SelfEmpl_pcnt",
	"HrsWrkWk_avg", "Wrk_15_17_pcnt", "WrkOutLoc_pcnt",
	"employeesAnnual_medWage", "EmployeesWage_decile9Up",
	"SelfEmployedAnnual_medWage", "SelfEmployedWage_decile9Up",
	"size_avg", "hh0_5_pcnt", "hh18_24_pcnt", "Computer_avg",
	"Vehicle0_pcnt", "Vehicle2up_pcnt", "Parking_pcnt", "own_pcnt",
	"rent_pcnt",
}
