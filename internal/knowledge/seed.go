package knowledge

// Seed returns the built-in EM&V reference content.
func Seed() []Category {
	return []Category{
		{
			Name:    "installation",
			Title:   "Installation",
			Summary: "meter and CT installation, safety, commissioning",
			Subcategories: []Subcategory{
				{Name: "safety", Data: Data{List: []Item{
					{Text: "De-energize and lock out the panel before opening it; follow NFPA 70E arc-flash requirements when live work cannot be avoided"},
					{Text: "Verify absence of voltage with a rated tester on every conductor"},
					{Text: "Use CTs rated for the conductor size and insulation voltage of the installation"},
				}}},
				{Name: "meter_installation", Title: "Meter Installation", Data: Data{List: []Item{
					{Text: "Mount the meter within lead length of the CTs and away from VFD output cabling"},
					{Text: "Connect voltage taps through fused leads, matching phase A/B/C to the CT on the same conductor"},
					{Text: "Install CTs with the arrow (or H1 side) pointing toward the load"},
					{Text: "Confirm positive kW on every phase before closing the panel"},
				}}},
				{Name: "commissioning", Data: Data{List: []Item{
					{FAQ: &FAQ{
						Question: "How long should the baseline measurement run?",
						Answer:   "At least two weeks covering normal operating schedules; IPMVP Option A and B projects commonly log 2 to 4 weeks before the retrofit.",
					}},
					{FAQ: &FAQ{
						Question: "Why does one phase read negative power?",
						Answer:   "The CT is usually reversed or paired with the wrong voltage phase. Flip the CT or correct the phase mapping, then re-check.",
					}},
				}}},
			},
		},
		{
			Name:    "specifications",
			Title:   "Specifications",
			Summary: "analyzer ratings, accuracy, sampling and data formats",
			Subcategories: []Subcategory{
				{Name: "analyzer", Title: "Power Analyzer", Data: Data{Fields: []Pair{
					{Key: "Voltage inputs", Value: "up to 600 V AC line-to-line, 3-phase 3- or 4-wire"},
					{Key: "Current inputs", Value: "333 mV or Rogowski CTs, 5 A to 5000 A"},
					{Key: "Accuracy", Value: "revenue grade, ANSI C12.20 class 0.2"},
					{Key: "Sampling", Value: "1-minute to 15-minute intervals; harmonics to the 50th order"},
					{Key: "Operating temperature", Value: "-20 °C to 60 °C"},
				}}},
				{Name: "data_formats", Title: "Data Formats", Data: Data{List: []Item{
					{Text: "CSV interval exports with timestamp, kW, kVAR, kVA, PF, V and A per phase"},
					{Text: "Utility interval data (15-minute kW) for whole-facility comparisons"},
					{Text: "Weather data as daily HDD/CDD for normalization"},
				}}},
			},
		},
		{
			Name:    "troubleshooting",
			Title:   "Troubleshooting",
			Summary: "bad readings, upload errors and analysis failures",
			Subcategories: []Subcategory{
				{Name: "readings", Title: "Unexpected Readings", Data: Data{List: []Item{
					{Text: "Power factor near zero: CT and voltage phases are mismatched"},
					{Text: "kW about one third of expected: a CT is open or unplugged"},
					{Text: "Current flat at zero: CT ratio or type is configured wrong"},
				}}},
				{Name: "analysis_errors", Title: "Analysis Errors", Data: Data{List: []Item{
					{FAQ: &FAQ{
						Question: "The analysis says the before and after periods do not overlap in conditions. What now?",
						Answer:   "Extend the logging period or enable weather normalization so both periods are compared at the same HDD/CDD.",
					}},
					{FAQ: &FAQ{
						Question: "Why was my file rejected?",
						Answer:   "The file must be CSV with a timestamp column and at least one power column. Check for mixed date formats and blank header cells.",
					}},
				}}},
			},
		},
		{
			Name:    "standards",
			Title:   "Standards & Compliance",
			Summary: "IPMVP, ASHRAE Guideline 14, IEEE 519, ANSI and NEMA references",
			Subcategories: []Subcategory{
				{Name: "ipmvp", Title: "IPMVP", Data: Data{Fields: []Pair{
					{Key: "Option A", Value: "Retrofit isolation, key parameter measurement; other parameters estimated"},
					{Key: "Option B", Value: "Retrofit isolation, all parameter measurement"},
					{Key: "Option C", Value: "Whole facility, utility meter data with regression"},
					{Key: "Option D", Value: "Calibrated simulation"},
				}}},
				{Name: "ashrae_guideline_14", Title: "ASHRAE Guideline 14", Data: Data{Fields: []Pair{
					{Key: "Monthly calibration", Value: "CV(RMSE) ≤ 15%, NMBE within ±5%"},
					{Key: "Hourly calibration", Value: "CV(RMSE) ≤ 30%, NMBE within ±10%"},
					{Key: "Scope", Value: "measurement of energy, demand and water savings"},
				}}},
				{Name: "ieee_519", Title: "IEEE 519-2014", Data: Data{Fields: []Pair{
					{Key: "≤ 1 kV", Value: "individual harmonic 5.0%, THD 8.0%"},
					{Key: "1 kV to 69 kV", Value: "individual harmonic 3.0%, THD 5.0%"},
					{Key: "69 kV to 161 kV", Value: "individual harmonic 1.5%, THD 2.5%"},
					{Key: "> 161 kV", Value: "individual harmonic 1.0%, THD 1.5%"},
				}}},
				{Name: "power_quality", Title: "Voltage and Motor Standards", Data: Data{List: []Item{
					{Text: "ANSI C84.1 Range A: service voltage within ±5% of nominal"},
					{Text: "NEMA MG 1: derate motors above 1% voltage unbalance; avoid operation above 5%"},
					{Text: "ANSI C12.20: accuracy classes 0.1, 0.2 and 0.5 for revenue meters"},
				}}},
				{Name: "faq", Title: "Compliance FAQ", Data: Data{List: []Item{
					{FAQ: &FAQ{
						Question: "Which standard should savings reports cite?",
						Answer:   "IPMVP for the measurement approach and ASHRAE Guideline 14 for model uncertainty; most utility programs accept both.",
					}},
				}}},
			},
		},
		{
			Name:    "analysis",
			Title:   "Power Analysis",
			Summary: "power factor, harmonics, normalization and savings math",
			Subcategories: []Subcategory{
				{Name: "power_factor", Title: "Power Factor", Data: Data{
					Text: "Power factor is kW / kVA. Many utilities bill a penalty below 0.90 or 0.95; capacitor banks or active correction raise it and reduce kVA demand.",
				}},
				{Name: "harmonics", Data: Data{
					Text: "Harmonics come from non-linear loads such as VFDs, LED drivers and UPS systems. Compare measured THD against IEEE 519 limits at the point of common coupling.",
				}},
				{Name: "normalization", Title: "Weather Normalization", Data: Data{List: []Item{
					{Text: "Regress baseline energy against heating and cooling degree days"},
					{Text: "Apply the baseline model to reporting-period weather to get adjusted baseline energy"},
					{Text: "Savings = adjusted baseline energy - reporting-period energy"},
				}}},
				{Name: "demand", Title: "Demand Savings", Data: Data{
					Text: "Demand savings use the peak 15-minute kW in each billing period; local utility tariffs define the ratchet and on-peak windows.",
				}},
			},
		},
		{
			Name:    "reporting",
			Title:   "Reporting",
			Summary: "report contents, verification and exports",
			Subcategories: []Subcategory{
				{Name: "report_contents", Title: "Report Contents", Data: Data{List: []Item{
					{Text: "Project and facility details, measurement boundary and IPMVP option"},
					{Text: "Baseline and reporting periods with the adjustments applied"},
					{Text: "Energy, demand and cost savings with uncertainty"},
					{Text: "Power quality summary: PF, THD and voltage balance"},
				}}},
				{Name: "verification", Data: Data{
					Text: "Each report is hashed when generated so the uploaded analysis files and the PDF can be verified later against the stored fingerprint.",
				}},
			},
		},
	}
}

// Default returns a Base holding only the built-in content.
func Default() *Base {
	return New(Seed()...)
}
