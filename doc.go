// Package tckbridge calls functions exported by the tchecker timed-automata
// library, chosen at runtime, without linking them into the caller.
//
// Every call runs in a fresh worker process. A segfault or hang inside the
// library costs that one call; the caller gets a classified outcome instead
// of dying with it.
//
// # Architecture Overview
//
//	tckbridge/
//	├── native/          Type tags and value coercion (int32, double, text, out_int32_ptr)
//	├── call/            Call descriptors: validated symbol, signature and encoded arguments
//	├── report/          The worker's report: value, output parameters, captured output, faults
//	├── worker/          Worker entry point: dlopen, libffi call, stdout capture
//	├── invoke/          Process isolation, timeouts and outcome classification
//	├── scratch/         Private temporary files handed to the library by path
//	├── analysis/        Catalog of tchecker operations and the service that runs them
//	├── config/          YAML and environment configuration
//	├── observability/   Prometheus metrics and OpenTelemetry tracing
//	├── api/             HTTP endpoints
//	├── errors/          Structured errors with phase, kind and path
//	└── cmd/tckbridge/   The command line: serve, run, call, ops, ui
//
// # Quick Start
//
// Call a symbol with explicit type tags:
//
//	iv, err := invoke.New("libm.so.6")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := iv.Call(ctx, "frexp", []string{"double", "out_int32_ptr"}, "double", []any{8.0, nil})
//	if err != nil {
//	    log.Fatalf("%s: %v", out.Status, err)
//	}
//	exp, _ := out.OutParam(1)
//	fmt.Println(out.Value.Float, exp) // 0.5 4
//
// Run a catalog operation against libtchecker:
//
//	cat, _ := analysis.Default()
//	iv, _ := invoke.New("libtchecker.so", invoke.WithRelease(cat.Release))
//	svc := analysis.NewService(cat, iv)
//
//	out, err := svc.Run(ctx, "syntax.check", map[string]any{"sysdecl": model})
//
// # Statuses
//
// An outcome's Status is one of completed, unknown_type, type_mismatch,
// value_overflow, malformed_request, library_load_error, result_parse_error,
// crashed or timed_out. Only crashed and timed_out are worth retrying.
//
// # Workers
//
// The invoker starts the current executable with the argument "worker"
// unless WithCommand says otherwise. Programs embedding the invoker must
// dispatch that argument to worker.Main before doing anything else:
//
//	func main() {
//	    if len(os.Args) > 1 && os.Args[1] == "worker" {
//	        worker.Main()
//	    }
//	    ...
//	}
//
// Workers need cgo and libffi. Without them worker.Supported reports false
// and every call fails with library_load_error.
package tckbridge
