// Package domain is the nutrient-solution calculation engine: it turns a
// desired ion composition into fertilizer masses for a pair of stock tanks.
//
// # Units
//
// Macro ions (NH4, K, Na, Ca, Mg, NO3, Cl, SO4, PO4, HCO3) are in mmol/L.
// Micro ions (Fe, Mn, B, Zn, Cu, Mo) are in µmol/L. pH is dimensionless and is
// never added or subtracted. Macro stock masses are reported in kg, micro
// masses in g, and liquid products additionally in L.
//
// HCO3 may be negative. A negative value is a bicarbonate deficit relative to
// neutral that nitric acid must cover, one mole of acid per mole.
//
// # Summary values
//
//	CAT        = NH4 + K + Na + 2Ca + 2Mg
//	AN         = NO3 + Cl + 2SO4 + PO4 + HCO3
//	EC         = (CAT + AN) / 20
//	ECExNaHCO3 = (CAT + AN - HCO3 - Na) / 20
//
// # Open loop
//
// For drain-to-waste systems the target is the standard recipe minus the raw
// water, ion by ion. Raw water already carries part of the load.
//
// # Closed loop
//
// For recirculating systems the measured drain is first rescaled onto the
// target drain's EC basis. Each corrected ion is bucketed against a boundary
// table; the difference between the drain's bucket and the target drain's
// bucket selects a delta from a five-entry table (index 2 is no change):
//
//	level(v) = index of the first boundary b with v < b, else len(boundaries)
//	index    = clamp(level(drain) - level(target) + 2, 0, 4)
//
// A value equal to a boundary lands in the bucket above it. The tables were
// calibrated against that rule.
//
// Macro deltas are additive (mmol/L). Micro deltas are percentages of the
// base recipe. A K/Ca ratio rule and an NH4/HCO3/pH rule add further
// corrections. After raw water is subtracted every ion but HCO3 is clamped at
// zero, and the remaining charge imbalance is moved onto K and Ca.
//
// # Stock tanks
//
//	Tank A: nitric acid, calcium nitrate, ammonium nitrate, iron chelate
//	Tank B: KH2PO4, MgSO4, K2SO4, Mn/Zn/Cu sulfates, borax, sodium molybdate
//
// Potassium nitrate is split between the two so the dissolved masses come out
// as even as possible.
package domain
