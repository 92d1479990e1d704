// Package invoke runs native calls in isolated worker processes.
//
// # Quick Start
//
//	iv, err := invoke.New("/opt/tchecker/lib/libtchecker.so",
//	    invoke.WithTimeout(10*time.Second),
//	    invoke.WithRelease("free_string"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := iv.Call(ctx, "tck_syntax_check_syntax",
//	    []string{"text"}, "text", []any{"/tmp/model.txt"})
//	if err != nil {
//	    log.Printf("%s: %v", out.Status, err)
//	}
//	fmt.Println(out.Value, string(out.Output))
//
// # Isolation
//
// Every call starts a fresh worker (by default the current executable with
// the "worker" sub-command) in its own process group, writes the encoded
// request to its stdin and waits for its report on stdout. A worker that
// crashes, hangs past the timeout, or prints garbage only affects its own
// call: the outcome says so and the next call gets a new process.
//
// # Outcomes
//
// Invoke always returns an Outcome. Its Status is one of:
//
//	completed           the call ran; Value, Out and Output are set
//	crashed             the worker died by signal or exited without a report
//	timed_out           the worker was killed when the timeout expired
//	malformed_request   the worker rejected the request
//	library_load_error  the library or a symbol could not be loaded
//	type_mismatch       an argument does not fit its declared type
//	value_overflow      an integer argument does not fit in int32
//	result_parse_error  the report was missing, truncated or inconsistent
//	unknown_type        a type tag is not in the registry
//
// Only crashed and timed_out are retryable.
package invoke
