package signature

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"class-transformer/internal/rename"
)

func testMatcher(t *testing.T) *rename.Matcher {
	t.Helper()
	m, err := rename.NewMatcher([]rename.Rule{
		rename.ParseRule("javax.servlet", "jakarta.servlet"),
		rename.ParseRule("javax.servlet.http", "jakarta.servlet.http"),
		rename.ParseRule("javax.foo", "jakarta.foo"),
		rename.ParseRule("a.b.*", "x.y"),
	})
	require.NoError(t, err)
	return m
}

func quietLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	return l, &buf
}

func TestRoundTrip(t *testing.T) {
	classSigs := []string{
		"Ljava/lang/Object;",
		"<T:Ljava/lang/Object;>Ljava/lang/Object;Ljava/lang/Comparable<TT;>;",
		"<K::Ljava/lang/Comparable<-TK;>;V:>Ljava/util/AbstractMap<TK;TV;>;Ljava/io/Serializable;",
		"Ljava/util/HashMap<TK;TV;>.Entry<[I>;",
	}
	for _, s := range classSigs {
		cs, err := ParseClass(s)
		require.NoError(t, err, s)
		require.Equal(t, s, cs.String())
	}

	methodSigs := []string{
		"()V",
		"<T:Ljava/lang/Object;>(TT;[[ILjava/util/List<+TT;>;)TT;^Ljava/io/IOException;^TE;",
		"(Ljava/util/Map<*Ljava/lang/String;>;)Ljava/util/Map$Entry;",
	}
	for _, s := range methodSigs {
		ms, err := ParseMethod(s)
		require.NoError(t, err, s)
		require.Equal(t, s, ms.String())
	}

	fieldSigs := []string{"TT;", "[TT;", "Ljava/util/List<Ljava/lang/String;>;", "LFoo;"}
	for _, s := range fieldSigs {
		fs, err := ParseField(s)
		require.NoError(t, err, s)
		require.Equal(t, s, fs.String())
	}

	for _, s := range []string{"I", "[[J", "Ljava/lang/String;", "LDefault;", "Lfoo/Bar$1;"} {
		jt, err := ParseFieldDescriptor(s)
		require.NoError(t, err, s)
		require.Equal(t, s, jt.String())
	}
	for _, s := range []string{"()V", "(IJ[Ljava/lang/String;)Ljava/lang/Object;"} {
		ms, err := ParseMethodDescriptor(s)
		require.NoError(t, err, s)
		require.Equal(t, s, ms.String())
	}
}

func TestParsedStructure(t *testing.T) {
	cs, err := ParseClass("<T:Ljava/lang/Object;>Ljava/util/HashMap<TT;TT;>.Entry<TT;>;Ljava/io/Serializable;")
	require.NoError(t, err)
	require.Len(t, cs.TypeParams, 1)
	require.Equal(t, "T", cs.TypeParams[0].Name)
	require.Equal(t, "java/util", cs.Super.Package)
	require.Equal(t, "HashMap", cs.Super.Outer.Name)
	require.Len(t, cs.Super.Outer.Args, 2)
	require.Len(t, cs.Super.Inner, 1)
	require.Equal(t, "java/util/HashMap$Entry", cs.Super.BinaryName())
	require.Len(t, cs.Interfaces, 1)

	ct, err := ParseBinaryName("javax/servlet/Servlet$Inner")
	require.NoError(t, err)
	require.Equal(t, "javax/servlet", ct.Package)
	require.Equal(t, "Servlet$Inner", ct.Outer.Name)
	require.Equal(t, "javax/servlet/Servlet$Inner", BinaryName(ct))
}

func TestMalformed(t *testing.T) {
	cases := []struct {
		parse func(string) error
		in    string
	}{
		{func(s string) error { _, err := ParseClass(s); return err }, ""},
		{func(s string) error { _, err := ParseClass(s); return err }, "<>Ljava/lang/Object;"},
		{func(s string) error { _, err := ParseClass(s); return err }, "Ljava/util/List<>;"},
		{func(s string) error { _, err := ParseMethod(s); return err }, "(I"},
		{func(s string) error { _, err := ParseMethod(s); return err }, "(I)VX"},
		{func(s string) error { _, err := ParseField(s); return err }, "I"},
		{func(s string) error { _, err := ParseField(s); return err }, "Ljava/lang/String"},
		{func(s string) error { _, err := ParseFieldDescriptor(s); return err }, "TT;"},
		{func(s string) error { _, err := ParseFieldDescriptor(s); return err }, "V"},
		{func(s string) error { _, err := ParseMethodDescriptor(s); return err }, "(V)V"},
		{func(s string) error { _, err := ParseBinaryName(s); return err }, "javax/"},
	}
	for _, c := range cases {
		err := c.parse(c.in)
		require.Error(t, err, "input %q", c.in)
		require.True(t, errors.Is(err, ErrMalformed), "input %q: %v", c.in, err)
		var se *SyntaxError
		require.ErrorAs(t, err, &se)
	}
}

func TestRenameTreeSharesUntouchedChildren(t *testing.T) {
	m := testMatcher(t)
	ms, err := ParseMethod("(Ljava/lang/String;Ljavax/servlet/ServletRequest;)Ljava/lang/Object;")
	require.NoError(t, err)

	out := RenameMethodSignature(m, ms)
	require.NotNil(t, out)
	require.Equal(t, "(Ljava/lang/String;Ljakarta/servlet/ServletRequest;)Ljava/lang/Object;", out.String())
	require.Same(t, ms.Params[0], out.Params[0])
	require.Same(t, ms.Result, out.Result)
	// The input is never mutated.
	require.Equal(t, "(Ljava/lang/String;Ljavax/servlet/ServletRequest;)Ljava/lang/Object;", ms.String())

	untouched, err := ParseMethod("(Ljava/lang/String;)V")
	require.NoError(t, err)
	require.Nil(t, RenameMethodSignature(m, untouched))
}

func TestTransformer(t *testing.T) {
	log, _ := quietLogger()
	for _, size := range []int{0, 64} {
		tr := NewTransformer(testMatcher(t), size, log)

		out, ok := tr.TransformBinaryType("javax/servlet/http/HttpServlet")
		require.True(t, ok)
		require.Equal(t, "jakarta/servlet/http/HttpServlet", out)

		out, ok = tr.TransformBinaryType("[Ljavax/servlet/Servlet;")
		require.True(t, ok)
		require.Equal(t, "[Ljakarta/servlet/Servlet;", out)

		_, ok = tr.TransformBinaryType("java/lang/Object")
		require.False(t, ok)
		_, ok = tr.TransformBinaryType("Top")
		require.False(t, ok)

		out, ok = tr.TransformDescriptor("(Ljavax/servlet/ServletRequest;I)Ljavax/servlet/ServletResponse;")
		require.True(t, ok)
		require.Equal(t, "(Ljakarta/servlet/ServletRequest;I)Ljakarta/servlet/ServletResponse;", out)

		out, ok = tr.TransformDescriptor("Ljavax/foo/Bar;")
		require.True(t, ok)
		require.Equal(t, "Ljakarta/foo/Bar;", out)

		out, ok = tr.TransformSignature("Ljava/util/List<Ljavax/foo/Bar;>;", FieldKind)
		require.True(t, ok)
		require.Equal(t, "Ljava/util/List<Ljakarta/foo/Bar;>;", out)

		out, ok = tr.TransformSignature("<T::Ljavax/servlet/Filter;>Ljava/lang/Object;Ljava/util/Map<TT;La/b/c/D<*>.Inner;>;", ClassKind)
		require.True(t, ok)
		require.Equal(t, "<T::Ljakarta/servlet/Filter;>Ljava/lang/Object;Ljava/util/Map<TT;Lx/y/c/D<*>.Inner;>;", out)

		out, ok = tr.TransformSignature("<E:Ljava/lang/Exception;>()V^Ljavax/servlet/ServletException;^TE;", MethodKind)
		require.True(t, ok)
		require.Equal(t, "<E:Ljava/lang/Exception;>()V^Ljakarta/servlet/ServletException;^TE;", out)

		// Repeated lookups agree with the first outcome.
		out, ok = tr.TransformDescriptor("Ljavax/foo/Bar;")
		require.True(t, ok)
		require.Equal(t, "Ljakarta/foo/Bar;", out)
		_, ok = tr.TransformDescriptor("Ljava/lang/String;")
		require.False(t, ok)
		_, ok = tr.TransformDescriptor("Ljava/lang/String;")
		require.False(t, ok)

		types, descs, sigs := tr.CacheStats()
		if size == 0 {
			require.Zero(t, types+descs+sigs)
		} else {
			require.Positive(t, types)
			require.Positive(t, descs)
			require.Positive(t, sigs)
		}
	}
}

func TestTransformerMalformedIsLoggedAndUnchanged(t *testing.T) {
	log, buf := quietLogger()
	tr := NewTransformer(testMatcher(t), 16, log)

	_, ok := tr.TransformSignature("Ljavax/foo/Bar<;", FieldKind)
	require.False(t, ok)
	require.Contains(t, buf.String(), "unparsable signature")

	buf.Reset()
	_, ok = tr.TransformDescriptor("(Ljavax/foo/Bar;")
	require.False(t, ok)
	require.Contains(t, buf.String(), "unparsable descriptor")
}

func TestTransformIsIdempotent(t *testing.T) {
	log, _ := quietLogger()
	tr := NewTransformer(testMatcher(t), 0, log)
	in := "(Ljava/util/List<Ljavax/servlet/Servlet;>;)La/b/c/D;"
	out, ok := tr.TransformSignature(in, MethodKind)
	require.True(t, ok)
	_, ok = tr.TransformSignature(out, MethodKind)
	require.False(t, ok)
}
