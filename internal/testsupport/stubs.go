package testsupport

// FFmpegStub writes a few bytes to its last argument, which is the output path
// for every ffmpeg invocation the pipeline makes.
const FFmpegStub = `for last; do :; done
printf 'stub-video' > "$last"
`

// FFprobeStub reports a 600 second duration for any input.
const FFprobeStub = `printf '{"streams":[],"format":{"duration":"600.0","size":"10","bit_rate":"1"}}'
`

// DanmakuFactoryStub writes a minimal subtitle file to the path following -o.
const DanmakuFactoryStub = `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then
    out="$2"
    shift
  fi
  shift
done
if [ -n "$out" ]; then
  printf '[Script Info]\n' > "$out"
fi
`

// FailingStub exits non-zero without producing output.
const FailingStub = `echo "stub failure" >&2
exit 1
`
