// # csvjson: Streaming Conversion Between Delimited Text and JSON
//
// csvjson converts CSV and TSV to JSON or NDJSON and back. Both directions stream: the reader pulls only the physical lines it needs for the next record and the writer hands output to its destination in bounded chunks, so inputs larger than memory convert with constant working state.
//
// # Features
//
// - Delimiter inference from the first non-empty line, with a fixed tie order and `;` as fallback.
// - A split-only fast path for inputs without quotes or backslashes, and a forward-only failover to the quote-aware tokenizer the moment one shows up.
// - Typed values: numbers and booleans are recognised on request, empty fields become null.
// - CSV-injection protection on both sides: formula triggers are prefixed with `'` (or rejected) on encode and the prefix is stripped on decode.
// - Structured errors via `ParsingError`, `LimitError`, `ValidationError`, `SecurityError` and `ConfigurationError`, all matchable with `errors.Is` against the package sentinels.
// - Error policies (throw, warn, skip) and a diagnostics hook for non-fatal events.
//
// Sub-packages add JSON Schema validation (schema), parallel chunked decoding (fanout), memoised conversion (cache), compressed and remote sources and sinks (source, sink), Parquet export (export) and file-based configuration (config). The csvjson command ties them together.
package csvjson
