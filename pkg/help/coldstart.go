package help

const ColdstartYAML = `# ffx Quick Start

commands:
  full_run: |
    ffx run --start-year 2011

  recent_only: |
    ffx run --start-year 2023 --max-files 5 -v

  offline_rerun: |
    # Re-extract from files already in data_raw, no network
    ffx run --skip-download

  text_only: |
    # Skip the OCR fallback (no tesseract needed)
    ffx run --no-ocr

  show_manifest: |
    ffx manifest --start-year 2024 --format yaml

  extract_local: |
    ffx extract --date 2019-06 --panel-hint spd data_raw/2019_spd_jun_results.pdf

  compare: |
    ffx compare --reference hartley_rstar.xlsx --cutoff 2025-01 --tolerance 0.125

  history: |
    ffx db runs
    ffx db run --problems
    ffx db downloads

key_files:
  - "data_out/nyfed_ff_longrun_percentiles.csv (one row per survey month and panel)"
  - "data_out/FIELDS.yaml (column reference)"
  - "data_out/index.yaml (all runs)"
  - "data_out/runs/{run_id}/summary.yaml (per-run summary and problem files)"
  - "data_raw/ffx.db (download ledger and run history)"

extraction_order:
  - "xlsx: fixed value tag, then question text"
  - "pdf: embedded text layer, then OCR of candidate pages"
  - "every file yields at least one row; empty rows carry notes"

notes:
  question_not_present: "file searched, question absent"
  values_not_parsed: "question found, numbers not recovered"
  no_text_layer: "pdf has no usable embedded text"
  ocr_skipped: "OCR disabled"
  ocr_unavailable: "tesseract missing or page render failed"
  download_failed: "network or HTTP error"
  not_downloaded: "--skip-download and file not on disk"
  pctl_order_violation: "p25 <= median <= p75 does not hold"

environment:
  - "Every flag reads FFX_<FLAG> (e.g. FFX_DATA_DIR)"
  - ".env in the working directory is loaded first"

error_behavior:
  - "Per-file problems never stop a run"
  - "Exit codes: 0=completed, 1=fatal (index unreachable, no files, output not writable, bad flags)"
`
