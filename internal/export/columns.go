package export

// odcColumns is the frozen column contract of the calculated-stats layout.
// Downstream tooling indexes this sheet by position: the list is enumerated
// once here and must never be reordered or re-derived.
var odcColumns = []string{
	// Identity and injury.
	"Subject_ID",
	"Cohort",
	"Sex",
	"Date_of_Birth",
	"Injury_Date",
	"Injury_Force_kDyn",
	"Injury_Displacement_um",
	"Date",
	"Test_Phase",
	"Days_Post_Injury",
	"Weight",
	"Weight_Pct",

	// Tray 1.
	"Tray_1_Type",
	"Tray_1_Presented",
	"Tray_1_Miss",
	"Tray_1_Displaced",
	"Tray_1_Retrieved",
	"Tray_1_Contacted",
	"Tray_1_Miss_Pct",
	"Tray_1_Displaced_Pct",
	"Tray_1_Retrieved_Pct",
	"Tray_1_Contacted_Pct",
	"Tray_1_Pellet_1",
	"Tray_1_Pellet_2",
	"Tray_1_Pellet_3",
	"Tray_1_Pellet_4",
	"Tray_1_Pellet_5",
	"Tray_1_Pellet_6",
	"Tray_1_Pellet_7",
	"Tray_1_Pellet_8",
	"Tray_1_Pellet_9",
	"Tray_1_Pellet_10",
	"Tray_1_Pellet_11",
	"Tray_1_Pellet_12",
	"Tray_1_Pellet_13",
	"Tray_1_Pellet_14",
	"Tray_1_Pellet_15",
	"Tray_1_Pellet_16",
	"Tray_1_Pellet_17",
	"Tray_1_Pellet_18",
	"Tray_1_Pellet_19",
	"Tray_1_Pellet_20",

	// Tray 2.
	"Tray_2_Type",
	"Tray_2_Presented",
	"Tray_2_Miss",
	"Tray_2_Displaced",
	"Tray_2_Retrieved",
	"Tray_2_Contacted",
	"Tray_2_Miss_Pct",
	"Tray_2_Displaced_Pct",
	"Tray_2_Retrieved_Pct",
	"Tray_2_Contacted_Pct",
	"Tray_2_Pellet_1",
	"Tray_2_Pellet_2",
	"Tray_2_Pellet_3",
	"Tray_2_Pellet_4",
	"Tray_2_Pellet_5",
	"Tray_2_Pellet_6",
	"Tray_2_Pellet_7",
	"Tray_2_Pellet_8",
	"Tray_2_Pellet_9",
	"Tray_2_Pellet_10",
	"Tray_2_Pellet_11",
	"Tray_2_Pellet_12",
	"Tray_2_Pellet_13",
	"Tray_2_Pellet_14",
	"Tray_2_Pellet_15",
	"Tray_2_Pellet_16",
	"Tray_2_Pellet_17",
	"Tray_2_Pellet_18",
	"Tray_2_Pellet_19",
	"Tray_2_Pellet_20",

	// Tray 3.
	"Tray_3_Type",
	"Tray_3_Presented",
	"Tray_3_Miss",
	"Tray_3_Displaced",
	"Tray_3_Retrieved",
	"Tray_3_Contacted",
	"Tray_3_Miss_Pct",
	"Tray_3_Displaced_Pct",
	"Tray_3_Retrieved_Pct",
	"Tray_3_Contacted_Pct",
	"Tray_3_Pellet_1",
	"Tray_3_Pellet_2",
	"Tray_3_Pellet_3",
	"Tray_3_Pellet_4",
	"Tray_3_Pellet_5",
	"Tray_3_Pellet_6",
	"Tray_3_Pellet_7",
	"Tray_3_Pellet_8",
	"Tray_3_Pellet_9",
	"Tray_3_Pellet_10",
	"Tray_3_Pellet_11",
	"Tray_3_Pellet_12",
	"Tray_3_Pellet_13",
	"Tray_3_Pellet_14",
	"Tray_3_Pellet_15",
	"Tray_3_Pellet_16",
	"Tray_3_Pellet_17",
	"Tray_3_Pellet_18",
	"Tray_3_Pellet_19",
	"Tray_3_Pellet_20",

	// Tray 4.
	"Tray_4_Type",
	"Tray_4_Presented",
	"Tray_4_Miss",
	"Tray_4_Displaced",
	"Tray_4_Retrieved",
	"Tray_4_Contacted",
	"Tray_4_Miss_Pct",
	"Tray_4_Displaced_Pct",
	"Tray_4_Retrieved_Pct",
	"Tray_4_Contacted_Pct",
	"Tray_4_Pellet_1",
	"Tray_4_Pellet_2",
	"Tray_4_Pellet_3",
	"Tray_4_Pellet_4",
	"Tray_4_Pellet_5",
	"Tray_4_Pellet_6",
	"Tray_4_Pellet_7",
	"Tray_4_Pellet_8",
	"Tray_4_Pellet_9",
	"Tray_4_Pellet_10",
	"Tray_4_Pellet_11",
	"Tray_4_Pellet_12",
	"Tray_4_Pellet_13",
	"Tray_4_Pellet_14",
	"Tray_4_Pellet_15",
	"Tray_4_Pellet_16",
	"Tray_4_Pellet_17",
	"Tray_4_Pellet_18",
	"Tray_4_Pellet_19",
	"Tray_4_Pellet_20",

	// Daily totals: pooled, then tray-averaged percentages.
	"Daily_Presented",
	"Daily_Miss",
	"Daily_Displaced",
	"Daily_Retrieved",
	"Daily_Contacted",
	"Daily_Miss_Pct",
	"Daily_Displaced_Pct",
	"Daily_Retrieved_Pct",
	"Daily_Contacted_Pct",
	"Avg_Miss_Pct",
	"Avg_Displaced_Pct",
	"Avg_Retrieved_Pct",
	"Avg_Contacted_Pct",

	// Subject totals.
	"Total_Sessions",
	"Total_Pellets_Scored",

	// Phase group summaries.
	"Flat_Training_Sessions",
	"Flat_Training_Presented",
	"Flat_Training_Miss_Pct",
	"Flat_Training_Displaced_Pct",
	"Flat_Training_Retrieved_Pct",
	"Flat_Training_Contacted_Pct",
	"Flat_Training_Weight_Pct",
	"Pillar_Training_Sessions",
	"Pillar_Training_Presented",
	"Pillar_Training_Miss_Pct",
	"Pillar_Training_Displaced_Pct",
	"Pillar_Training_Retrieved_Pct",
	"Pillar_Training_Contacted_Pct",
	"Pillar_Training_Weight_Pct",
	"Last_3_Sessions",
	"Last_3_Presented",
	"Last_3_Miss_Pct",
	"Last_3_Displaced_Pct",
	"Last_3_Retrieved_Pct",
	"Last_3_Contacted_Pct",
	"Last_3_Weight_Pct",
	"Post_injury_1_Sessions",
	"Post_injury_1_Presented",
	"Post_injury_1_Miss_Pct",
	"Post_injury_1_Displaced_Pct",
	"Post_injury_1_Retrieved_Pct",
	"Post_injury_1_Contacted_Pct",
	"Post_injury_1_Weight_Pct",
	"Post_Injury_2-4_Sessions",
	"Post_Injury_2-4_Presented",
	"Post_Injury_2-4_Miss_Pct",
	"Post_Injury_2-4_Displaced_Pct",
	"Post_Injury_2-4_Retrieved_Pct",
	"Post_Injury_2-4_Contacted_Pct",
	"Post_Injury_2-4_Weight_Pct",
	"Rehab_Easy_Sessions",
	"Rehab_Easy_Presented",
	"Rehab_Easy_Miss_Pct",
	"Rehab_Easy_Displaced_Pct",
	"Rehab_Easy_Retrieved_Pct",
	"Rehab_Easy_Contacted_Pct",
	"Rehab_Easy_Weight_Pct",
	"Rehab_Flat_Sessions",
	"Rehab_Flat_Presented",
	"Rehab_Flat_Miss_Pct",
	"Rehab_Flat_Displaced_Pct",
	"Rehab_Flat_Retrieved_Pct",
	"Rehab_Flat_Contacted_Pct",
	"Rehab_Flat_Weight_Pct",
	"Rehab_Pillar_Sessions",
	"Rehab_Pillar_Presented",
	"Rehab_Pillar_Miss_Pct",
	"Rehab_Pillar_Displaced_Pct",
	"Rehab_Pillar_Retrieved_Pct",
	"Rehab_Pillar_Contacted_Pct",
	"Rehab_Pillar_Weight_Pct",
}
